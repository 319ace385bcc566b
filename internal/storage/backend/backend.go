// Package backend implements the interchangeable storage primitives of
// component behavior: an in-memory backend, a JSON-file backend, an embedded SQL
// backend (modernc.org/sqlite), and a Redis backend. Storage Providers
// (internal/storage/provider) compose typed views on top of whichever
// backend a namespace is configured to use.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is a sentinel for reporting absence distinctly from a
// transport error. No Backend method in this package returns it: Get reports
// absence as (nil, false, nil), Delete as existed == false, and Has as false.
var ErrNotFound = errors.New("backend: not found")

// ErrSizeLimitExceeded is returned by Set on the memory backend when adding
// a new key would exceed its configured maxSize.
var ErrSizeLimitExceeded = errors.New("backend: size limit exceeded")

// Type names a concrete backend implementation.
type Type string

const (
	TypeMemory Type = "memory"
	TypeFile   Type = "file"
	TypeSQL    Type = "sql"
	TypeRedis  Type = "redis"
)

// Backend is the common contract every storage backend implements. All
// methods are safe for concurrent use.
type Backend interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	BackendType() Type

	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (existed bool, err error)
	Has(ctx context.Context, key string) (bool, error)

	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error

	Keys(ctx context.Context, pattern string) ([]string, error)
	DeletePattern(ctx context.Context, pattern string) (int, error)

	LPush(ctx context.Context, key string, values ...[]byte) error
	LRange(ctx context.Context, key string, start, stop int) ([][]byte, error)
	LTrim(ctx context.Context, key string, start, stop int) error
	LLen(ctx context.Context, key string) (int, error)

	Incr(ctx context.Context, key string, by int64) (int64, error)
}
