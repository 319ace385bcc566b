package chatsession

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/dexto-ai/dexto-core/internal/history"
	"github.com/dexto-ai/dexto-core/pkg/chatmsg"
)

// messageManager composes Message History (C6) with a Tokenizer and a
// Formatter. It is private to chatsession: nothing outside a Session's own
// tool-calling loop needs it.
type messageManager struct {
	sessionID string
	history   *history.History
	tokenizer Tokenizer
	formatter Formatter
	system    string
}

func newMessageManager(sessionID string, h *history.History, tokenizer Tokenizer, formatter Formatter, system string) *messageManager {
	return &messageManager{sessionID: sessionID, history: h, tokenizer: tokenizer, formatter: formatter, system: system}
}

func (m *messageManager) append(ctx context.Context, msg chatmsg.Message) error {
	if err := m.history.AddMessage(ctx, m.sessionID, msg); err != nil {
		return fmt.Errorf("message manager: %w", err)
	}
	return nil
}

func (m *messageManager) all(ctx context.Context) ([]chatmsg.Message, error) {
	return m.history.GetMessages(ctx, m.sessionID)
}

func (m *messageManager) formatted(ctx context.Context) ([]*schema.Message, error) {
	messages, err := m.all(ctx)
	if err != nil {
		return nil, err
	}
	return m.formatter.Format(m.system, messages), nil
}

func (m *messageManager) tokenCount(ctx context.Context) (int, error) {
	messages, err := m.all(ctx)
	if err != nil {
		return 0, err
	}
	return m.tokenizer.CountTokens(messages), nil
}

func (m *messageManager) reset(ctx context.Context) error {
	return m.history.ClearSession(ctx, m.sessionID)
}
