// Package chatmsg defines the wire-independent message shape shared by the
// message history, the chat session's tool-calling loop, and the LM service
// adapters in internal/provider.
package chatmsg

import "encoding/json"

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies the kind of content carried by a Part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Part is one element of a message's ordered content sequence. Exactly the
// fields relevant to Type are meaningful; the rest are zero.
type Part struct {
	Type PartType `json:"type"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartImage
	ImageURL  string `json:"imageUrl,omitempty"`
	ImageData []byte `json:"imageData,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`

	// PartToolCall
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	ToolArgs   json.RawMessage `json:"toolArgs,omitempty"`

	// PartToolResult
	ToolResult  string `json:"toolResult,omitempty"`
	ToolIsError bool   `json:"toolIsError,omitempty"`
}

// TextPart builds a PartText.
func TextPart(text string) Part { return Part{Type: PartText, Text: text} }

// ToolCallPart builds a PartToolCall.
func ToolCallPart(callID, name string, args json.RawMessage) Part {
	return Part{Type: PartToolCall, ToolCallID: callID, ToolName: name, ToolArgs: args}
}

// ToolResultPart builds a PartToolResult.
func ToolResultPart(callID, result string, isError bool) Part {
	return Part{Type: PartToolResult, ToolCallID: callID, ToolResult: result, ToolIsError: isError}
}

// Message is an immutable record in a session's conversation log. Content is
// either a single text blob (Content != "", Parts == nil) or an ordered
// sequence of Parts; a message never carries both.
type Message struct {
	Role Role `json:"role"`

	// Content is the single-blob form. Mutually exclusive with Parts.
	Content string `json:"content,omitempty"`

	// Parts is the multi-part form. Mutually exclusive with Content.
	Parts []Part `json:"parts,omitempty"`

	// ToolCallID correlates a RoleTool result to the assistant's prior
	// tool-call part. Empty for every other role.
	ToolCallID string `json:"toolCallId,omitempty"`

	// Metadata is provider-opaque and passed through unmodified.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Text builds a single-blob message.
func Text(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// WithParts builds a multi-part message.
func WithParts(role Role, parts ...Part) Message {
	return Message{Role: role, Parts: parts}
}

// ToolResult builds a tool-result message correlated to callID.
func ToolResult(callID, result string, isError bool) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: result, Metadata: map[string]any{"error": isError}}
}

// PlainText returns the message's text content, concatenating text parts
// when the message uses the multi-part form. Non-text parts are ignored.
func (m Message) PlainText() string {
	if m.Parts == nil {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolCalls returns the tool-call parts in a message, if any.
func (m Message) ToolCalls() []Part {
	var out []Part
	for _, p := range m.Parts {
		if p.Type == PartToolCall {
			out = append(out, p)
		}
	}
	return out
}
