package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dexto-ai/dexto-core/internal/storage/backend"
)

// sessionEnvelope is the stored shape for a Session Provider entry, per
// component behavior: "{ data, expiresAt? }".
type sessionEnvelope struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt *int64          `json:"expiresAt,omitempty"`
}

func (e sessionEnvelope) expired() bool {
	return e.ExpiresAt != nil && time.Now().UnixMilli() > *e.ExpiresAt
}

// Session is the Session-with-TTL Provider: setSession/
// getSession/hasSession/deleteSession/getActiveSessions/cleanupExpired.
// Backends whose Set already expresses TTL natively (memory, sql, redis)
// would not strictly need the expiresAt envelope field, but storing it
// explicitly lets getActiveSessions enumerate-and-filter uniformly across
// every backend, including ones (file) whose Keys listing cannot see a
// backend-native expiry.
type Session struct {
	be     backend.Backend
	prefix string
}

// NewSession constructs a Session Provider over be, namespacing session ids
// under prefix (e.g. "sessions:").
func NewSession(be backend.Backend, prefix string) *Session {
	return &Session{be: be, prefix: prefix}
}

func (s *Session) key(id string) string { return s.prefix + id }

func (s *Session) SetSession(ctx context.Context, id string, data any, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("provider/session: marshal: %w", err)
	}
	env := sessionEnvelope{Data: raw}
	if ttl > 0 {
		exp := time.Now().Add(ttl).UnixMilli()
		env.ExpiresAt = &exp
	}
	envData, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("provider/session: marshal envelope: %w", err)
	}
	return s.be.Set(ctx, s.key(id), envData, ttl)
}

// GetSession returns the stored data for id, unmarshaled into out. If the
// session is absent or expired it returns (false, nil) and deletes the
// expired record lazily.
func (s *Session) GetSession(ctx context.Context, id string, out any) (bool, error) {
	raw, ok, err := s.be.Get(ctx, s.key(id))
	if err != nil || !ok {
		return false, err
	}
	var env sessionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("provider/session: unmarshal envelope: %w", err)
	}
	if env.expired() {
		_, _ = s.be.Delete(ctx, s.key(id))
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return false, fmt.Errorf("provider/session: unmarshal data: %w", err)
		}
	}
	return true, nil
}

func (s *Session) HasSession(ctx context.Context, id string) (bool, error) {
	return s.GetSession(ctx, id, nil)
}

func (s *Session) DeleteSession(ctx context.Context, id string) (bool, error) {
	return s.be.Delete(ctx, s.key(id))
}

// GetActiveSessions enumerates every non-expired session id under this
// provider's prefix.
func (s *Session) GetActiveSessions(ctx context.Context) ([]string, error) {
	keys, err := s.be.Keys(ctx, s.prefix+"*")
	if err != nil {
		return nil, err
	}
	var active []string
	for _, k := range keys {
		id := strings.TrimPrefix(k, s.prefix)
		if ok, err := s.HasSession(ctx, id); err == nil && ok {
			active = append(active, id)
		}
	}
	return active, nil
}

// CleanupExpired deletes every expired session under this provider's prefix
// and returns how many were removed.
func (s *Session) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := s.be.Keys(ctx, s.prefix+"*")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		id := strings.TrimPrefix(k, s.prefix)
		raw, ok, err := s.be.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		var env sessionEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if env.expired() {
			if existed, err := s.be.Delete(ctx, s.key(id)); err == nil && existed {
				removed++
			}
		}
	}
	return removed, nil
}

func (s *Session) Clear(ctx context.Context) error {
	_, err := s.be.DeletePattern(ctx, s.prefix+"*")
	return err
}

func (s *Session) Close(ctx context.Context) error {
	return nil
}
