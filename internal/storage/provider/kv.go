// Package provider implements the typed Storage Provider views
// on top of the backend.Backend contract: Key/Value, Collection, and
// Session-with-TTL. A Purpose-keyed Factory resolves which backend-backed
// provider instance serves a given purpose (history, sessions, userInfo,
// allowedTools, ...).
package provider

import (
	"context"
	"time"

	"github.com/dexto-ai/dexto-core/internal/storage/backend"
)

// KV is the Key/Value Provider: a thin typed facade over a
// Backend's single-key operations, scoped by a key prefix so multiple
// providers can share one backend namespace without colliding.
type KV struct {
	be     backend.Backend
	prefix string
}

// NewKV constructs a Key/Value Provider over be, namespacing every key it
// touches under prefix (e.g. "userInfo:").
func NewKV(be backend.Backend, prefix string) *KV {
	return &KV{be: be, prefix: prefix}
}

func (p *KV) key(k string) string { return p.prefix + k }

func (p *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.be.Get(ctx, p.key(key))
}

func (p *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.be.Set(ctx, p.key(key), value, ttl)
}

func (p *KV) Has(ctx context.Context, key string) (bool, error) {
	return p.be.Has(ctx, p.key(key))
}

func (p *KV) Delete(ctx context.Context, key string) (bool, error) {
	return p.be.Delete(ctx, p.key(key))
}

// Keys lists keys under this provider's prefix, matching pattern against the
// unprefixed key.
func (p *KV) Keys(ctx context.Context, pattern string) ([]string, error) {
	all, err := p.be.Keys(ctx, p.prefix+pattern)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(all))
	for i, k := range all {
		out[i] = k[len(p.prefix):]
	}
	return out, nil
}

func (p *KV) Clear(ctx context.Context) error {
	_, err := p.be.DeletePattern(ctx, p.prefix+"*")
	return err
}

func (p *KV) Close(ctx context.Context) error {
	return nil
}
