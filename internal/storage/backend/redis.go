package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a storage backend backed by a shared redis instance, for
// deployments that run multiple Core processes against one store. It is
// grounded on the history store pattern of xyzj-llm/storage/redis.go:
// a thin wrapper around *redis.Client with a per-call timeout and JSON
// values opaque to the backend itself.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	callTTL   time.Duration
	log       zerolog.Logger
}

// RedisOption configures a Redis backend at construction.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces every key this backend touches, so multiple
// namespaces can share one redis database without colliding.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.keyPrefix = prefix }
}

// WithCallTimeout bounds every individual redis round trip. Defaults to 3s,
// matching xyzj-llm's history store.
func WithCallTimeout(d time.Duration) RedisOption {
	return func(r *Redis) { r.callTTL = d }
}

// WithRedisLogger attaches a logger for connection diagnostics.
func WithRedisLogger(l zerolog.Logger) RedisOption {
	return func(r *Redis) { r.log = l }
}

// NewRedis constructs a Redis backend against the given address/DB. addr is
// "host:port"; password may be empty.
func NewRedis(addr, password string, db int, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		callTTL: 3 * time.Second,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) BackendType() Type { return TypeRedis }

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.callTTL)
}

func (r *Redis) k(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + ":" + key
}

func (r *Redis) Connect(ctx context.Context) error {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Ping(cctx).Err(); err != nil {
		return fmt.Errorf("backend/redis: ping: %w", err)
	}
	return nil
}

func (r *Redis) Disconnect(ctx context.Context) error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("backend/redis: close: %w", err)
	}
	return nil
}

func (r *Redis) IsConnected() bool {
	cctx, cancel := context.WithTimeout(context.Background(), r.callTTL)
	defer cancel()
	return r.client.Ping(cctx).Err() == nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	val, err := r.client.Get(cctx, r.k(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("backend/redis: get: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Set(cctx, r.k(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("backend/redis: set: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := r.client.Del(cctx, r.k(key)).Result()
	if err != nil {
		return false, fmt.Errorf("backend/redis: delete: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := r.client.Exists(cctx, r.k(key)).Result()
	if err != nil {
		return false, fmt.Errorf("backend/redis: exists: %w", err)
	}
	return n > 0, nil
}

func (r *Redis) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.k(k)
	}
	vals, err := r.client.MGet(cctx, prefixed...).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: mget: %w", err)
	}
	out := make(map[string][]byte, len(keys))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

func (r *Redis) MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	pipe := r.client.Pipeline()
	for k, v := range values {
		pipe.Set(cctx, r.k(k), v, ttl)
	}
	if _, err := pipe.Exec(cctx); err != nil {
		return fmt.Errorf("backend/redis: mset: %w", err)
	}
	return nil
}

func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var out []string
	var cursor uint64
	scanPattern := r.k(pattern)
	for {
		var keys []string
		var err error
		keys, cursor, err = r.client.Scan(cctx, cursor, scanPattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("backend/redis: scan: %w", err)
		}
		for _, k := range keys {
			out = append(out, r.stripPrefix(k))
		}
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (r *Redis) stripPrefix(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	prefix := r.keyPrefix + ":"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}

func (r *Redis) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := r.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.k(k)
	}
	n, err := r.client.Del(cctx, prefixed...).Result()
	if err != nil {
		return 0, fmt.Errorf("backend/redis: delete pattern: %w", err)
	}
	return int(n), nil
}

func (r *Redis) LPush(ctx context.Context, key string, values ...[]byte) error {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	if err := r.client.RPush(cctx, r.k(key), args...).Err(); err != nil {
		return fmt.Errorf("backend/redis: rpush: %w", err)
	}
	return nil
}

func (r *Redis) LRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	vals, err := r.client.LRange(cctx, r.k(key), int64(start), int64(stop)).Result()
	if err != nil {
		return nil, fmt.Errorf("backend/redis: lrange: %w", err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (r *Redis) LTrim(ctx context.Context, key string, start, stop int) error {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.LTrim(cctx, r.k(key), int64(start), int64(stop)).Err(); err != nil {
		return fmt.Errorf("backend/redis: ltrim: %w", err)
	}
	return nil
}

func (r *Redis) LLen(ctx context.Context, key string) (int, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := r.client.LLen(cctx, r.k(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("backend/redis: llen: %w", err)
	}
	return int(n), nil
}

func (r *Redis) Incr(ctx context.Context, key string, by int64) (int64, error) {
	cctx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := r.client.IncrBy(cctx, r.k(key), by).Result()
	if err != nil {
		return 0, fmt.Errorf("backend/redis: incrby: %w", err)
	}
	return n, nil
}
