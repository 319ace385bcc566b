package provider

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"github.com/dexto-ai/dexto-core/pkg/chatmsg"
)

// ToEinoMessages converts a Chat Session's wire-independent history into the
// Eino schema.Message sequence a ToolCallingChatModel expects. Mirrors the
// teacher's Processor.convertMessage, generalized from types.Message/Part to
// chatmsg.Message/Part.
func ToEinoMessages(messages []chatmsg.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, toEinoMessage(m))
	}
	return out
}

func toEinoMessage(m chatmsg.Message) *schema.Message {
	role := schema.Assistant
	switch m.Role {
	case chatmsg.RoleUser:
		role = schema.User
	case chatmsg.RoleSystem:
		role = schema.System
	case chatmsg.RoleTool:
		role = schema.Tool
	}

	einoMsg := &schema.Message{Role: role, Content: m.PlainText()}
	if m.Role == chatmsg.RoleTool {
		einoMsg.ToolCallID = m.ToolCallID
	}
	for _, part := range m.Parts {
		if part.Type != chatmsg.PartToolCall {
			continue
		}
		einoMsg.ToolCalls = append(einoMsg.ToolCalls, schema.ToolCall{
			ID: part.ToolCallID,
			Function: schema.FunctionCall{
				Name:      part.ToolName,
				Arguments: string(part.ToolArgs),
			},
		})
	}
	return einoMsg
}

// FromEinoMessage converts an assistant completion back into the Core's
// wire-independent shape, preserving tool calls as PartToolCall entries.
func FromEinoMessage(msg *schema.Message) chatmsg.Message {
	if len(msg.ToolCalls) == 0 {
		return chatmsg.Text(chatmsg.RoleAssistant, msg.Content)
	}

	parts := make([]chatmsg.Part, 0, len(msg.ToolCalls)+1)
	if msg.Content != "" {
		parts = append(parts, chatmsg.TextPart(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		parts = append(parts, chatmsg.ToolCallPart(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}
	return chatmsg.WithParts(chatmsg.RoleAssistant, parts...)
}
