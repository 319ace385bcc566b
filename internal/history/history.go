// Package history implements Message History: a thin wrapper over a
// Collection Provider keyed by messages:<sessionId>, owned exclusively by
// one Chat Session.
package history

import (
	"context"
	"fmt"

	"github.com/dexto-ai/dexto-core/internal/storage/provider"
	"github.com/dexto-ai/dexto-core/pkg/chatmsg"
)

// History is the Message History collaborator of a single Chat Session.
// Size limits are deliberately not imposed here; truncation for the LM
// context window is the Chat Session's own concern.
type History struct {
	factory *provider.Factory
	purpose string
}

// New constructs a History backed by the "history" purpose of factory.
func New(factory *provider.Factory) *History {
	return &History{factory: factory, purpose: "history"}
}

func (h *History) collectionFor(ctx context.Context, sessionID string) (*provider.Collection, error) {
	return h.factory.CollectionFor(ctx, h.purpose, "messages:"+sessionID)
}

// AddMessage appends message to sessionId's history. On a backend error it
// returns a save error without losing any prior messages.
func (h *History) AddMessage(ctx context.Context, sessionID string, message chatmsg.Message) error {
	coll, err := h.collectionFor(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("history: resolve collection: %w", err)
	}
	if err := coll.Add(ctx, message); err != nil {
		return fmt.Errorf("history: save message for session %q: %w", sessionID, err)
	}
	return nil
}

// GetMessages returns the full chronological sequence for sessionId; empty
// if the session is unknown.
func (h *History) GetMessages(ctx context.Context, sessionID string) ([]chatmsg.Message, error) {
	coll, err := h.collectionFor(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history: resolve collection: %w", err)
	}
	var messages []chatmsg.Message
	if err := coll.GetAll(ctx, &messages); err != nil {
		return nil, fmt.Errorf("history: load messages for session %q: %w", sessionID, err)
	}
	return messages, nil
}

// ClearSession deletes sessionId's collection key entirely.
func (h *History) ClearSession(ctx context.Context, sessionID string) error {
	coll, err := h.collectionFor(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("history: resolve collection: %w", err)
	}
	return coll.Clear(ctx)
}
