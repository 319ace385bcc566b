package sessionmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/dexto-ai/dexto-core/internal/chatsession"
	"github.com/dexto-ai/dexto-core/internal/event"
	"github.com/dexto-ai/dexto-core/internal/provider"
	storageprovider "github.com/dexto-ai/dexto-core/internal/storage/provider"
)

const (
	// DefaultMaxSessions is the default maxSessions.
	DefaultMaxSessions = 100
	// DefaultSessionTTL is the default sessionTTL (3,600,000 ms).
	DefaultSessionTTL = time.Hour
	// maxCleanupInterval bounds the periodic sweep to
	// min(sessionTTL/4, 15 min).
	maxCleanupInterval = 15 * time.Minute
)

// Factory constructs and initializes a new Chat Session for id. Supplied by
// the composition root (the Agent Façade / cmd entrypoint), which alone
// knows how to wire an LLMService and ToolSources; the Session Manager only
// knows how to track the result.
type Factory func(ctx context.Context, id string) (*chatsession.Session, error)

// ErrLimitExceeded is returned by CreateSession when activeSessions.size
// would exceed MaxSessions.
type ErrLimitExceeded struct {
	MaxSessions int
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("sessionmgr: session limit exceeded (max %d)", e.MaxSessions)
}

// Options configures a new Manager. SessionProvider and NewSession are
// required; everything else has a spec-mandated default.
type Options struct {
	GlobalBus       *event.Bus
	SessionProvider *storageprovider.Session
	NewSession      Factory
	MaxSessions     int
	SessionTTL      time.Duration
	Log             zerolog.Logger
}

// Manager is the Session Manager: it owns the live-session map, the
// Session Provider backing it, and the TTL sweep that reclaims idle
// sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*chatsession.Session

	sessionProvider *storageprovider.Session
	newSession      Factory
	globalBus       *event.Bus
	log             zerolog.Logger

	maxSessions     int
	sessionTTL      time.Duration
	cleanupInterval time.Duration

	cleanupStop chan struct{}
	cleanupDone chan struct{}
	cleanupOnce sync.Once
}

// New constructs a Manager. Callers must call Init before use.
func New(opts Options) *Manager {
	maxSessions := opts.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	cleanupInterval := ttl / 4
	if cleanupInterval > maxCleanupInterval || cleanupInterval <= 0 {
		cleanupInterval = maxCleanupInterval
	}

	return &Manager{
		sessions:        make(map[string]*chatsession.Session),
		sessionProvider: opts.SessionProvider,
		newSession:      opts.NewSession,
		globalBus:       opts.GlobalBus,
		log:             opts.Log.With().Str("component", "session_manager").Logger(),
		maxSessions:     maxSessions,
		sessionTTL:      ttl,
		cleanupInterval: cleanupInterval,
	}
}

// Init acquires the session provider and schedules the periodic cleanup
// sweep. Persisted sessions are restored lazily: metadata is left in
// storage and hydrated into an in-memory Session only on next request.
func (m *Manager) Init(ctx context.Context) error {
	if m.sessionProvider == nil || m.newSession == nil {
		return fmt.Errorf("sessionmgr: missing required collaborator")
	}
	m.cleanupStop = make(chan struct{})
	m.cleanupDone = make(chan struct{})
	go m.cleanupLoop()
	return nil
}

func (m *Manager) cleanupLoop() {
	defer close(m.cleanupDone)
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.cleanupStop:
			return
		case <-ticker.C:
			m.sweep(context.Background())
		}
	}
}

// sweep deletes expired metadata from storage and evicts the corresponding
// in-memory Session. Errors evicting an individual session are logged and
// do not stop the sweep.
func (m *Manager) sweep(ctx context.Context) {
	if _, err := m.sessionProvider.CleanupExpired(ctx); err != nil {
		m.log.Warn().Err(err).Msg("cleanup sweep: storage expiry pass failed")
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		ok, err := m.sessionProvider.HasSession(ctx, id)
		if err != nil {
			m.log.Warn().Err(err).Str("sessionId", id).Msg("cleanup sweep: metadata lookup failed")
			continue
		}
		if ok {
			continue
		}
		if err := m.evict(ctx, id); err != nil {
			m.log.Warn().Err(err).Str("sessionId", id).Msg("cleanup sweep: eviction failed")
		}
	}
}

func (m *Manager) evict(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	err := sess.Reset(ctx)
	sess.Dispose()
	return err
}

func (m *Manager) touchMetadata(ctx context.Context, id string, meta Metadata) error {
	meta.LastActivity = time.Now().UnixMilli()
	return m.sessionProvider.SetSession(ctx, id, meta, m.sessionTTL)
}

// CreateSession returns the session named id (generating a ulid if id is
// empty), creating it if it does not already exist.
func (m *Manager) CreateSession(ctx context.Context, id string) (*chatsession.Session, error) {
	if id == "" {
		id = ulid.Make().String()
	}

	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		var meta Metadata
		if found, err := m.sessionProvider.GetSession(ctx, id, &meta); err == nil && found {
			_ = m.touchMetadata(ctx, id, meta)
		}
		return sess, nil
	}
	m.mu.Unlock()

	var meta Metadata
	found, err := m.sessionProvider.GetSession(ctx, id, &meta)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: load metadata: %w", err)
	}
	if found {
		return m.hydrate(ctx, id, meta)
	}

	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, &ErrLimitExceeded{MaxSessions: m.maxSessions}
	}
	m.mu.Unlock()

	sess, err := m.newSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: construct session %q: %w", id, err)
	}
	if err := sess.Init(ctx); err != nil {
		return nil, fmt.Errorf("sessionmgr: init session %q: %w", id, err)
	}

	now := time.Now().UnixMilli()
	newMeta := Metadata{ID: id, CreatedAt: now, LastActivity: now, MessageCount: 0, TTL: m.sessionTTL}
	if err := m.sessionProvider.SetSession(ctx, id, newMeta, m.sessionTTL); err != nil {
		return nil, fmt.Errorf("sessionmgr: persist metadata for %q: %w", id, err)
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()
	return sess, nil
}

func (m *Manager) hydrate(ctx context.Context, id string, meta Metadata) (*chatsession.Session, error) {
	sess, err := m.newSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: hydrate session %q: %w", id, err)
	}
	if err := sess.Init(ctx); err != nil {
		return nil, fmt.Errorf("sessionmgr: init hydrated session %q: %w", id, err)
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	_ = m.touchMetadata(ctx, id, meta)
	return sess, nil
}

// GetSession returns the session named id: a memory hit bumps activity, a
// storage hit hydrates and bumps, and a miss returns (nil, false, nil).
func (m *Manager) GetSession(ctx context.Context, id string) (*chatsession.Session, bool, error) {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		var meta Metadata
		if found, err := m.sessionProvider.GetSession(ctx, id, &meta); err == nil && found {
			_ = m.touchMetadata(ctx, id, meta)
		}
		return sess, true, nil
	}
	m.mu.Unlock()

	var meta Metadata
	found, err := m.sessionProvider.GetSession(ctx, id, &meta)
	if err != nil {
		return nil, false, fmt.Errorf("sessionmgr: load metadata: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	sess, err := m.hydrate(ctx, id, meta)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// ForkSession creates a new session whose message history is a prefix copy
// of sourceID's: the first uptoIndex+1 messages (0-based, inclusive). A
// negative uptoIndex forks with no history copied; an index past the end of
// the source's history copies everything. The new session's metadata
// records ParentID = sourceID. Per SPEC_FULL.md's session-forking
// supplement, this is a natural consequence of Message History being an
// ordered, addressable log - no Core module needs to change to support it.
func (m *Manager) ForkSession(ctx context.Context, sourceID string, uptoIndex int) (*chatsession.Session, string, error) {
	source, ok, err := m.GetSession(ctx, sourceID)
	if err != nil {
		return nil, "", fmt.Errorf("sessionmgr: fork session: %w", err)
	}
	if !ok {
		return nil, "", fmt.Errorf("sessionmgr: fork session: unknown session %q", sourceID)
	}

	messages, err := source.Messages(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("sessionmgr: fork session: read source history: %w", err)
	}
	if uptoIndex >= 0 && uptoIndex < len(messages)-1 {
		messages = messages[:uptoIndex+1]
	}
	if uptoIndex < 0 {
		messages = nil
	}

	newID := ulid.Make().String()
	forked, err := m.CreateSession(ctx, newID)
	if err != nil {
		return nil, "", fmt.Errorf("sessionmgr: fork session: create %q: %w", newID, err)
	}
	if err := forked.ImportMessages(ctx, messages); err != nil {
		return nil, "", fmt.Errorf("sessionmgr: fork session: copy history: %w", err)
	}

	meta, found, err := m.GetSessionMetadata(ctx, newID)
	if err != nil {
		return nil, "", fmt.Errorf("sessionmgr: fork session: load new metadata: %w", err)
	}
	if !found {
		return nil, "", fmt.Errorf("sessionmgr: fork session: metadata for %q vanished after create", newID)
	}
	meta.ParentID = sourceID
	meta.MessageCount = len(messages)
	if err := m.touchMetadata(ctx, newID, meta); err != nil {
		return nil, "", fmt.Errorf("sessionmgr: fork session: persist parent link: %w", err)
	}

	return forked, newID, nil
}

// GetChildSessions returns metadata for every session whose ParentID is
// sourceID.
func (m *Manager) GetChildSessions(ctx context.Context, sourceID string) ([]Metadata, error) {
	all, err := m.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: get child sessions: %w", err)
	}
	var children []Metadata
	for _, meta := range all {
		if meta.ParentID == sourceID {
			children = append(children, meta)
		}
	}
	return children, nil
}

// GetDefaultSession returns (creating if necessary) the session named
// "default".
func (m *Manager) GetDefaultSession(ctx context.Context) (*chatsession.Session, error) {
	return m.CreateSession(ctx, "default")
}

// EndSession resets and disposes the session named id, if present, and
// deletes its metadata. Idempotent.
func (m *Manager) EndSession(ctx context.Context, id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		if err := sess.Reset(ctx); err != nil {
			m.log.Warn().Err(err).Str("sessionId", id).Msg("end session: reset failed")
		}
		sess.Dispose()
	}

	if _, err := m.sessionProvider.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("sessionmgr: delete metadata for %q: %w", id, err)
	}
	return nil
}

// ListSessions returns metadata for every persisted session.
func (m *Manager) ListSessions(ctx context.Context) ([]Metadata, error) {
	ids, err := m.sessionProvider.GetActiveSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionmgr: list sessions: %w", err)
	}
	out := make([]Metadata, 0, len(ids))
	for _, id := range ids {
		var meta Metadata
		if found, err := m.sessionProvider.GetSession(ctx, id, &meta); err == nil && found {
			out = append(out, meta)
		}
	}
	return out, nil
}

// GetSessionMetadata returns the persisted metadata for id.
func (m *Manager) GetSessionMetadata(ctx context.Context, id string) (Metadata, bool, error) {
	var meta Metadata
	found, err := m.sessionProvider.GetSession(ctx, id, &meta)
	if err != nil {
		return Metadata{}, false, fmt.Errorf("sessionmgr: get metadata: %w", err)
	}
	return meta, found, nil
}

// IncrementMessageCount performs a read-modify-write increment on id's
// message count. Not atomic across concurrent callers for the same id; an
// atomic increment in the backend would be a valid future refinement.
func (m *Manager) IncrementMessageCount(ctx context.Context, id string) error {
	var meta Metadata
	found, err := m.sessionProvider.GetSession(ctx, id, &meta)
	if err != nil {
		return fmt.Errorf("sessionmgr: increment message count: %w", err)
	}
	if !found {
		return fmt.Errorf("sessionmgr: increment message count: unknown session %q", id)
	}
	meta.MessageCount++
	meta.LastActivity = time.Now().UnixMilli()
	return m.sessionProvider.SetSession(ctx, id, meta, m.sessionTTL)
}

// SwitchLLMForSpecificSession applies cfg to exactly one session, returning
// a not-found error if it is unknown.
func (m *Manager) SwitchLLMForSpecificSession(ctx context.Context, id string, cfg provider.Config) error {
	sess, ok, err := m.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sessionmgr: switch llm: unknown session %q", id)
	}
	sess.SwitchLLM(cfg)
	m.globalBus.Emit(event.Event{Name: event.SaikiLLMSwitched, Payload: event.SwitchedPayload{
		NewConfig:       cfg,
		Router:          cfg.Router,
		HistoryRetained: true,
		SessionID:       id,
	}})
	return nil
}

// SwitchLLMForDefaultSession applies cfg to the "default" session.
func (m *Manager) SwitchLLMForDefaultSession(ctx context.Context, cfg provider.Config) error {
	return m.SwitchLLMForSpecificSession(ctx, "default", cfg)
}

// SwitchLLMForAllSessions fans cfg out to every in-memory session,
// collecting per-session failures without aborting, and emits a single
// saiki:llmSwitched carrying every session id that actually switched.
func (m *Manager) SwitchLLMForAllSessions(ctx context.Context, cfg provider.Config) ([]string, error) {
	m.mu.Lock()
	sessions := make(map[string]*chatsession.Session, len(m.sessions))
	for id, sess := range m.sessions {
		sessions[id] = sess
	}
	m.mu.Unlock()

	var switched []string
	var firstErr error
	for id, sess := range sessions {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error().Interface("panic", r).Str("sessionId", id).Msg("switch llm panicked")
					if firstErr == nil {
						firstErr = fmt.Errorf("sessionmgr: switch llm for %q panicked: %v", id, r)
					}
				}
			}()
			sess.SwitchLLM(cfg)
			switched = append(switched, id)
		}()
	}

	m.globalBus.Emit(event.Event{Name: event.SaikiLLMSwitched, Payload: event.SwitchedPayload{
		NewConfig:       cfg,
		Router:          cfg.Router,
		HistoryRetained: true,
		SessionIDs:      switched,
	}})
	return switched, firstErr
}

// GetSessionStats returns a snapshot of the Manager's current counts.
func (m *Manager) GetSessionStats(ctx context.Context) (Stats, error) {
	ids, err := m.sessionProvider.GetActiveSessions(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("sessionmgr: get stats: %w", err)
	}
	m.mu.Lock()
	inMemory := len(m.sessions)
	m.mu.Unlock()

	return Stats{
		TotalSessions:    len(ids),
		InMemorySessions: inMemory,
		MaxSessions:      m.maxSessions,
		SessionTTL:       m.sessionTTL,
	}, nil
}

// Cleanup cancels the periodic sweep, ends every in-memory session, and
// clears the map.
func (m *Manager) Cleanup(ctx context.Context) error {
	if m.cleanupStop != nil {
		m.cleanupOnce.Do(func() {
			close(m.cleanupStop)
			<-m.cleanupDone
		})
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := m.EndSession(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
