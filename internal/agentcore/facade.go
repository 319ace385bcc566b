package agentcore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dexto-ai/dexto-core/internal/chatsession"
	"github.com/dexto-ai/dexto-core/internal/event"
	"github.com/dexto-ai/dexto-core/internal/provider"
	"github.com/dexto-ai/dexto-core/internal/sessionmgr"
)

// Scope selects which session(s) a switchLLM(config, scope) call targets.
type Scope struct {
	Kind      ScopeKind
	SessionID string // meaningful only when Kind == ScopeSession
}

// ScopeKind enumerates the three switchLLM fan-out targets the Session
// Manager (C8) already implements as separate methods.
type ScopeKind int

const (
	// ScopeDefault targets the "default" session.
	ScopeDefault ScopeKind = iota
	// ScopeSession targets exactly one named session.
	ScopeSession
	// ScopeAll targets every in-memory session.
	ScopeAll
)

// Agent is the Agent Façade. It owns the Session Manager
// exclusively; the global event bus is shared with every Chat Session it
// creates indirectly through the manager's session Factory.
type Agent struct {
	sessions  *sessionmgr.Manager
	globalBus *event.Bus
	log       zerolog.Logger
}

// New constructs an Agent over an already-initialized Session Manager and
// the global bus it was configured with.
func New(sessions *sessionmgr.Manager, globalBus *event.Bus, log zerolog.Logger) *Agent {
	return &Agent{sessions: sessions, globalBus: globalBus, log: log.With().Str("component", "agent_facade").Logger()}
}

// resolveSession returns the session sessionID names, defaulting to
// "default" when sessionID is empty, creating it via the Session Manager if
// it does not already exist.
func (a *Agent) resolveSession(ctx context.Context, sessionID string) (*chatsession.Session, string, error) {
	if sessionID == "" {
		sessionID = "default"
	}
	sess, err := a.sessions.CreateSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	return sess, sessionID, nil
}

// Run resolves sessionID (or the default session) and executes one user
// turn against it, bumping its message count on success.
func (a *Agent) Run(ctx context.Context, text string, imageData []byte, sessionID string) (string, error) {
	sess, id, err := a.resolveSession(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("agent: resolve session: %w", err)
	}
	reply, err := sess.Run(ctx, text, imageData)
	if err != nil {
		return "", err
	}
	if err := a.sessions.IncrementMessageCount(ctx, id); err != nil {
		a.log.Warn().Err(err).Str("sessionId", id).Msg("run: increment message count failed")
	}
	return reply, nil
}

// Reset clears sessionID's history (or the default session's).
func (a *Agent) Reset(ctx context.Context, sessionID string) error {
	sess, _, err := a.resolveSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("agent: resolve session: %w", err)
	}
	return sess.Reset(ctx)
}

// SwitchLLM applies cfg to the session(s) scope selects.
func (a *Agent) SwitchLLM(ctx context.Context, cfg provider.Config, scope Scope) error {
	switch scope.Kind {
	case ScopeDefault:
		return a.sessions.SwitchLLMForDefaultSession(ctx, cfg)
	case ScopeSession:
		return a.sessions.SwitchLLMForSpecificSession(ctx, scope.SessionID, cfg)
	case ScopeAll:
		_, err := a.sessions.SwitchLLMForAllSessions(ctx, cfg)
		return err
	default:
		return fmt.Errorf("agent: switch llm: unknown scope kind %v", scope.Kind)
	}
}

// ListSessions returns metadata for every persisted session.
func (a *Agent) ListSessions(ctx context.Context) ([]sessionmgr.Metadata, error) {
	return a.sessions.ListSessions(ctx)
}

// EndSession ends the named session.
func (a *Agent) EndSession(ctx context.Context, id string) error {
	return a.sessions.EndSession(ctx, id)
}

// ForkSession creates a new session carrying a prefix copy of sourceID's
// message history (up to and including message index uptoIndex), returning
// the new session's id.
func (a *Agent) ForkSession(ctx context.Context, sourceID string, uptoIndex int) (string, error) {
	_, newID, err := a.sessions.ForkSession(ctx, sourceID, uptoIndex)
	if err != nil {
		return "", fmt.Errorf("agent: fork session: %w", err)
	}
	return newID, nil
}

// ChildSessions returns metadata for every session forked from sourceID.
func (a *Agent) ChildSessions(ctx context.Context, sourceID string) ([]sessionmgr.Metadata, error) {
	return a.sessions.GetChildSessions(ctx, sourceID)
}

// Subscribe registers fn against every global-bus event and returns a
// Handle; Unsubscribe (or calling Cancel directly) detaches it.
func (a *Agent) Subscribe(fn event.Handler) *event.Handle {
	return a.globalBus.OnAll(fn)
}

// Unsubscribe detaches a Handle returned by Subscribe. Safe to call more
// than once.
func (a *Agent) Unsubscribe(h *event.Handle) {
	h.Cancel()
}
