package backend

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero means no TTL
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process backend backed by plain maps. It enforces
// maxSize on the entry map and runs a periodic sweep to delete expired
// entries, in addition to lazy expiry on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memEntry
	lists   map[string][][]byte
	counts  map[string]int64

	maxSize      int
	sweepEvery   time.Duration
	log          zerolog.Logger
	connected    bool
	stopSweeping chan struct{}
}

// MemoryOption configures a Memory backend at construction.
type MemoryOption func(*Memory)

// WithMaxSize bounds the number of live entries. Zero means unbounded.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// WithSweepInterval overrides the default 30s expiry sweep interval.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.sweepEvery = d }
}

// WithLogger attaches a logger for sweep warnings.
func WithLogger(l zerolog.Logger) MemoryOption {
	return func(m *Memory) { m.log = l }
}

// NewMemory constructs a Memory backend. Call Connect to start its sweep
// goroutine.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    make(map[string]memEntry),
		lists:      make(map[string][][]byte),
		counts:     make(map[string]int64),
		sweepEvery: 30 * time.Second,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Memory) BackendType() Type { return TypeMemory }

func (m *Memory) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.connected {
		m.mu.Unlock()
		return nil
	}
	m.connected = true
	m.stopSweeping = make(chan struct{})
	stop := m.stopSweeping
	m.mu.Unlock()

	go m.sweepLoop(stop)
	return nil
}

func (m *Memory) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil
	}
	close(m.stopSweeping)
	m.connected = false
	return nil
}

func (m *Memory) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Memory) sweepLoop(stop chan struct{}) {
	t := time.NewTicker(m.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			m.sweepExpired()
		}
	}
}

func (m *Memory) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.maxSize > 0 && len(m.entries) >= m.maxSize {
		return ErrSizeLimitExceeded
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = memEntry{value: value, expiresAt: expiresAt}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.entries[key]
	delete(m.entries, key)
	delete(m.lists, key)
	delete(m.counts, key)
	return existed, nil
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *Memory) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, _ := m.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	for k, v := range values {
		if err := m.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k, e := range m.entries {
		if e.expired(now) {
			continue
		}
		if re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *Memory) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := m.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, ok := m.entries[k]; ok {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) LPush(ctx context.Context, key string, values ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], values...)
	return nil
}

func (m *Memory) LRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	return sliceRange(list, start, stop), nil
}

func (m *Memory) LTrim(ctx context.Context, key string, start, stop int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = sliceRange(m.lists[key], start, stop)
	return nil
}

func (m *Memory) LLen(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key]), nil
}

func (m *Memory) Incr(ctx context.Context, key string, by int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key] += by
	return m.counts[key], nil
}

// sliceRange applies Redis-style (possibly negative) start/stop indices to
// a slice, clamping out-of-range values instead of panicking.
func sliceRange[T any](s []T, start, stop int) []T {
	n := len(s)
	if n == 0 {
		return nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	out := make([]T, stop-start+1)
	copy(out, s[start:stop+1])
	return out
}
