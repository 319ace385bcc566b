package event

// Global event bus event names. Every payload is
// extended with SessionID when a Chat Session's local bus forwards it onto
// the global bus (see Forward in forward.go).
const (
	LLMServiceThinking   = "llmservice:thinking"
	LLMServiceChunk      = "llmservice:chunk"
	LLMServiceToolCall   = "llmservice:toolCall"
	LLMServiceToolResult = "llmservice:toolResult"
	LLMServiceResponse   = "llmservice:response"
	LLMServiceError      = "llmservice:error"
	LLMServiceSwitched   = "llmservice:switched"

	SaikiConversationReset    = "saiki:conversationReset"
	SaikiMCPServerConnected   = "saiki:mcpServerConnected"
	SaikiAvailableToolsUpdate = "saiki:availableToolsUpdated"
	SaikiLLMSwitched          = "saiki:llmSwitched"

	// MessageManagerConversationReset is emitted locally on a session's own
	// bus; like every local event it also reaches the global bus under this
	// name through Forward. Its global counterpart, emitted directly on the
	// global bus, is SaikiConversationReset.
	MessageManagerConversationReset = "messageManager:conversationReset"
)

// ThinkingPayload backs llmservice:thinking, an empty-payload event marking
// the start of an LM turn.
type ThinkingPayload struct{}

// ChunkPayload backs llmservice:chunk: one streamed text delta.
type ChunkPayload struct {
	Text       string `json:"text"`
	IsComplete bool   `json:"isComplete"`
}

// ToolCallPayload backs llmservice:toolCall.
type ToolCallPayload struct {
	ToolName string `json:"toolName"`
	Args     any    `json:"args"`
	CallID   string `json:"callId"`
}

// ToolResultPayload backs llmservice:toolResult.
type ToolResultPayload struct {
	ToolName string `json:"toolName"`
	Result   string `json:"result"`
	CallID   string `json:"callId"`
	Success  bool   `json:"success"`
}

// ResponsePayload backs llmservice:response: the LM's terminal text for a
// run.
type ResponsePayload struct {
	Text       string `json:"text"`
	TokenCount int    `json:"tokenCount,omitempty"`
	Model      string `json:"model,omitempty"`
}

// ErrorPayload backs llmservice:error.
type ErrorPayload struct {
	Message     string `json:"message"`
	Context     string `json:"context,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// SwitchedPayload backs both llmservice:switched (local, one session) and
// saiki:llmSwitched (global, one or many sessions).
type SwitchedPayload struct {
	NewConfig       any      `json:"newConfig"`
	Router          string   `json:"router"`
	HistoryRetained bool     `json:"historyRetained"`
	SessionID       string   `json:"sessionId,omitempty"`
	SessionIDs      []string `json:"sessionIds,omitempty"`
}

// ConversationResetPayload backs saiki:conversationReset and
// messageManager:conversationReset, both empty-payload events.
type ConversationResetPayload struct{}

// MCPServerConnectedPayload backs saiki:mcpServerConnected.
type MCPServerConnectedPayload struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AvailableToolsUpdatedPayload backs saiki:availableToolsUpdated.
type AvailableToolsUpdatedPayload struct {
	Tools  []string `json:"tools"`
	Source string   `json:"source"`
}
