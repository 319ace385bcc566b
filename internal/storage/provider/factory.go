package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dexto-ai/dexto-core/internal/storage"
	"github.com/dexto-ai/dexto-core/internal/storage/backend"
)

// BackendConfig describes how to construct one named backend instance.
type BackendConfig struct {
	Type  backend.Type
	Redis RedisConfig
}

// RedisConfig is only consulted when Type == backend.TypeRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// FactoryConfig is the Purpose-keyed Factory configuration: a "default"
// backend every purpose falls back to, plus optional overrides
// keyed either by exact purpose name or by "custom.<purpose>".
type FactoryConfig struct {
	Default  BackendConfig
	Override map[string]BackendConfig
}

// Factory builds Key/Value, Collection, and Session providers for a given
// purpose, resolving which backend configuration to use in the order: exact
// purpose key -> "custom.<purpose>" -> "default". A missing default is a
// configuration error. Built providers (and the backends underneath them)
// are memoized per purpose so repeated calls for the same purpose return
// the same instance.
type Factory struct {
	storageCtx storage.Context
	cfg        FactoryConfig
	log        zerolog.Logger

	mu        sync.Mutex
	backends  map[string]backend.Backend
	kvCache   map[string]*KV
	collCache map[string]*Collection
	sessCache map[string]*Session
}

// NewFactory constructs a Factory. storageCtx supplies the resolved storage
// root for file/sql-backed purposes.
func NewFactory(storageCtx storage.Context, cfg FactoryConfig, log zerolog.Logger) (*Factory, error) {
	if cfg.Default.Type == "" {
		return nil, fmt.Errorf("provider/factory: missing default backend configuration")
	}
	return &Factory{
		storageCtx: storageCtx,
		cfg:        cfg,
		log:        log,
		backends:   make(map[string]backend.Backend),
		kvCache:    make(map[string]*KV),
		collCache:  make(map[string]*Collection),
		sessCache:  make(map[string]*Session),
	}, nil
}

func (f *Factory) resolveConfig(purpose string) BackendConfig {
	if c, ok := f.cfg.Override[purpose]; ok {
		return c
	}
	if c, ok := f.cfg.Override["custom."+purpose]; ok {
		return c
	}
	return f.cfg.Default
}

// backendFor returns the (memoized, connected) backend instance serving
// purpose, constructing and connecting it on first use.
func (f *Factory) backendFor(ctx context.Context, purpose string) (backend.Backend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if be, ok := f.backends[purpose]; ok {
		return be, nil
	}

	cfg := f.resolveConfig(purpose)
	var be backend.Backend
	switch cfg.Type {
	case backend.TypeMemory:
		be = backend.NewMemory(backend.WithLogger(f.log))
	case backend.TypeFile:
		be = backend.NewFile(f.storageCtx.StorageRoot+"/"+purpose, f.log)
	case backend.TypeSQL:
		be = backend.NewSQLite(f.storageCtx.StorageRoot, purpose, f.log)
	case backend.TypeRedis:
		be = backend.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			backend.WithKeyPrefix(purpose), backend.WithRedisLogger(f.log))
	default:
		return nil, fmt.Errorf("provider/factory: unknown backend type %q for purpose %q", cfg.Type, purpose)
	}

	if err := be.Connect(ctx); err != nil {
		return nil, fmt.Errorf("provider/factory: connect backend for purpose %q: %w", purpose, err)
	}
	f.backends[purpose] = be
	return be, nil
}

// KVFor returns the memoized Key/Value Provider for purpose.
func (f *Factory) KVFor(ctx context.Context, purpose string) (*KV, error) {
	f.mu.Lock()
	if kv, ok := f.kvCache[purpose]; ok {
		f.mu.Unlock()
		return kv, nil
	}
	f.mu.Unlock()

	be, err := f.backendFor(ctx, purpose)
	if err != nil {
		return nil, err
	}
	kv := NewKV(be, purpose+":")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.kvCache[purpose] = kv
	return kv, nil
}

// CollectionFor returns the memoized Collection Provider for purpose,
// storing items under the given list key.
func (f *Factory) CollectionFor(ctx context.Context, purpose, listKey string) (*Collection, error) {
	cacheKey := purpose + "/" + listKey
	f.mu.Lock()
	if c, ok := f.collCache[cacheKey]; ok {
		f.mu.Unlock()
		return c, nil
	}
	f.mu.Unlock()

	be, err := f.backendFor(ctx, purpose)
	if err != nil {
		return nil, err
	}
	c := NewCollection(be, purpose+":"+listKey)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.collCache[cacheKey] = c
	return c, nil
}

// SessionFor returns the memoized Session Provider for purpose.
func (f *Factory) SessionFor(ctx context.Context, purpose string) (*Session, error) {
	f.mu.Lock()
	if s, ok := f.sessCache[purpose]; ok {
		f.mu.Unlock()
		return s, nil
	}
	f.mu.Unlock()

	be, err := f.backendFor(ctx, purpose)
	if err != nil {
		return nil, err
	}
	s := NewSession(be, purpose+":")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessCache[purpose] = s
	return s, nil
}

// Close disconnects every backend this Factory has constructed.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for purpose, be := range f.backends {
		if err := be.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("provider/factory: disconnect %q: %w", purpose, err)
		}
	}
	return firstErr
}
