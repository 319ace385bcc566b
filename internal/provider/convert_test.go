package provider

import (
	"encoding/json"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/dexto-ai/dexto-core/pkg/chatmsg"
)

func TestToEinoMessages_RolesAndToolCalls(t *testing.T) {
	messages := []chatmsg.Message{
		chatmsg.Text(chatmsg.RoleSystem, "be helpful"),
		chatmsg.Text(chatmsg.RoleUser, "what's 2+2?"),
		chatmsg.WithParts(chatmsg.RoleAssistant,
			chatmsg.ToolCallPart("call-1", "add", json.RawMessage(`{"a":2,"b":2}`)),
		),
		chatmsg.ToolResult("call-1", "4", false),
	}

	out := ToEinoMessages(messages)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}

	if out[0].Role != schema.System || out[0].Content != "be helpful" {
		t.Errorf("unexpected system message: %+v", out[0])
	}
	if out[1].Role != schema.User || out[1].Content != "what's 2+2?" {
		t.Errorf("unexpected user message: %+v", out[1])
	}
	if out[2].Role != schema.Assistant || len(out[2].ToolCalls) != 1 {
		t.Fatalf("expected assistant message with 1 tool call, got %+v", out[2])
	}
	if out[2].ToolCalls[0].ID != "call-1" || out[2].ToolCalls[0].Function.Name != "add" {
		t.Errorf("unexpected tool call: %+v", out[2].ToolCalls[0])
	}
	if out[3].Role != schema.Tool || out[3].ToolCallID != "call-1" || out[3].Content != "4" {
		t.Errorf("unexpected tool result message: %+v", out[3])
	}
}

func TestFromEinoMessage_TextOnly(t *testing.T) {
	msg := FromEinoMessage(&schema.Message{Role: schema.Assistant, Content: "hello"})
	if msg.Role != chatmsg.RoleAssistant || msg.PlainText() != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(msg.ToolCalls()) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(msg.ToolCalls()))
	}
}

func TestFromEinoMessage_WithToolCalls(t *testing.T) {
	msg := FromEinoMessage(&schema.Message{
		Role:    schema.Assistant,
		Content: "let me check",
		ToolCalls: []schema.ToolCall{
			{ID: "call-9", Function: schema.FunctionCall{Name: "lookup", Arguments: `{"q":"weather"}`}},
		},
	})

	calls := msg.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call part, got %d", len(calls))
	}
	if calls[0].ToolCallID != "call-9" || calls[0].ToolName != "lookup" {
		t.Errorf("unexpected tool call part: %+v", calls[0])
	}
	if msg.PlainText() != "let me check" {
		t.Errorf("expected leading text part preserved, got %q", msg.PlainText())
	}
}

func TestFromEinoMessage_ToolCallsWithoutText(t *testing.T) {
	msg := FromEinoMessage(&schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{
			{ID: "call-1", Function: schema.FunctionCall{Name: "noop"}},
		},
	})
	if msg.PlainText() != "" {
		t.Errorf("expected empty text, got %q", msg.PlainText())
	}
	if len(msg.ToolCalls()) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls()))
	}
}
