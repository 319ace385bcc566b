package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

var unsafeKeyChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeKey replaces characters outside [A-Za-z0-9._-] with '_' so that
// arbitrary keys map onto safe filenames.
func sanitizeKey(key string) string {
	return unsafeKeyChar.ReplaceAllString(key, "_")
}

// fileEnvelope is the on-disk JSON document for a single key.
type fileEnvelope struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt *int64          `json:"expiresAt,omitempty"` // unix millis
	CreatedAt int64           `json:"createdAt"`
	UpdatedAt int64           `json:"updatedAt"`
}

// fileListEnvelope is the on-disk JSON document for a list key.
type fileListEnvelope struct {
	Items     []json.RawMessage `json:"items"`
	ExpiresAt *int64            `json:"expiresAt,omitempty"`
	CreatedAt int64             `json:"createdAt"`
	UpdatedAt int64             `json:"updatedAt"`
}

// File is a JSON-document-per-key backend rooted at a directory. Writes are
// atomic (write to "<path>.tmp", then rename). It is single-process only:
// concurrent writers *within* this process are serialized by one
// backend-wide mutex held for every write; across processes, the gofrs/flock guard on
// write prevents a concurrent external writer from observing a half-written
// temp file, but no cross-process coordination is otherwise attempted.
type File struct {
	root string
	log  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*flock.Flock

	connected bool
}

// NewFile constructs a File backend rooted at dir. The directory is created
// on Connect.
func NewFile(dir string, log zerolog.Logger) *File {
	return &File{root: dir, log: log, locks: make(map[string]*flock.Flock)}
}

func (f *File) BackendType() Type { return TypeFile }

func (f *File) Connect(ctx context.Context) error {
	if err := os.MkdirAll(f.keysDir(), 0o755); err != nil {
		return fmt.Errorf("backend/file: create keys dir: %w", err)
	}
	if err := os.MkdirAll(f.listsDir(), 0o755); err != nil {
		return fmt.Errorf("backend/file: create lists dir: %w", err)
	}
	f.connected = true
	return nil
}

func (f *File) Disconnect(ctx context.Context) error {
	f.connected = false
	return nil
}

func (f *File) IsConnected() bool { return f.connected }

func (f *File) keysDir() string  { return filepath.Join(f.root, "keys") }
func (f *File) listsDir() string { return filepath.Join(f.root, "lists") }

func (f *File) keyPath(key string) string {
	return filepath.Join(f.keysDir(), sanitizeKey(key)+".json")
}

func (f *File) listPath(key string) string {
	return filepath.Join(f.listsDir(), sanitizeKey(key)+".json")
}

func (f *File) lockFor(path string) *flock.Flock {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[path]
	if !ok {
		l = flock.New(path + ".lock")
		f.locks[path] = l
	}
	return l
}

// atomicWrite marshals v and writes it to path via a temp file + rename.
func atomicWrite(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("backend/file: create parent dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("backend/file: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("backend/file: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backend/file: rename into place: %w", err)
	}
	return nil
}

func (f *File) withLock(path string, fn func() error) error {
	l := f.lockFor(path)
	// f.mu is held for the whole write so that writers in this process run
	// one at a time: a second goroutine sharing the same *flock.Flock is not
	// blocked by the file lock alone.
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := l.Lock(); err != nil {
		return fmt.Errorf("backend/file: acquire lock: %w", err)
	}
	defer l.Unlock()
	return fn()
}

func expiresAtMillis(ttl time.Duration) *int64 {
	if ttl <= 0 {
		return nil
	}
	ms := time.Now().Add(ttl).UnixMilli()
	return &ms
}

func isExpired(exp *int64) bool {
	return exp != nil && time.Now().UnixMilli() > *exp
}

func (f *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := f.keyPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("backend/file: read: %w", err)
	}
	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.log.Warn().Str("key", key).Err(err).Msg("corrupted storage record, treating as absent")
		return nil, false, nil
	}
	if isExpired(env.ExpiresAt) {
		_ = os.Remove(path)
		return nil, false, nil
	}
	return env.Value, true, nil
}

func (f *File) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	path := f.keyPath(key)
	return f.withLock(path, func() error {
		now := time.Now().UnixMilli()
		created := now
		if existing, ok, _ := f.Get(ctx, key); ok {
			_ = existing
			var prev fileEnvelope
			if data, err := os.ReadFile(path); err == nil {
				if err := json.Unmarshal(data, &prev); err == nil {
					created = prev.CreatedAt
				}
			}
		}
		env := fileEnvelope{
			Value:     json.RawMessage(value),
			ExpiresAt: expiresAtMillis(ttl),
			CreatedAt: created,
			UpdatedAt: now,
		}
		return atomicWrite(path, env)
	})
}

func (f *File) Delete(ctx context.Context, key string) (bool, error) {
	path := f.keyPath(key)
	var existed bool
	err := f.withLock(path, func() error {
		if _, err := os.Stat(path); err == nil {
			existed = true
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("backend/file: delete: %w", err)
		}
		return nil
	})
	if err != nil {
		return existed, err
	}
	listPath := f.listPath(key)
	err = f.withLock(listPath, func() error {
		if err := os.Remove(listPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("backend/file: delete list: %w", err)
		}
		return nil
	})
	return existed, err
}

func (f *File) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := f.Get(ctx, key)
	return ok, err
}

func (f *File) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, err := f.Get(ctx, k); err != nil {
			return nil, err
		} else if ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *File) MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	for k, v := range values {
		if err := f.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) Keys(ctx context.Context, pattern string) ([]string, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(f.keysDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backend/file: list keys dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, ok := keyFromFilename(e.Name())
		if !ok || !re.MatchString(key) {
			continue
		}
		if _, present, _ := f.Get(ctx, key); present {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func keyFromFilename(name string) (string, bool) {
	const suffix = ".json"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	return name[:len(name)-len(suffix)], true
}

func (f *File) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := f.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if existed, err := f.Delete(ctx, k); err != nil {
			return n, err
		} else if existed {
			n++
		}
	}
	return n, nil
}

func (f *File) LPush(ctx context.Context, key string, values ...[]byte) error {
	path := f.listPath(key)
	return f.withLock(path, func() error {
		env := f.readList(path)
		for _, v := range values {
			env.Items = append(env.Items, json.RawMessage(v))
		}
		env.UpdatedAt = time.Now().UnixMilli()
		if env.CreatedAt == 0 {
			env.CreatedAt = env.UpdatedAt
		}
		return atomicWrite(path, env)
	})
}

func (f *File) readList(path string) fileListEnvelope {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileListEnvelope{}
	}
	var env fileListEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.log.Warn().Str("path", path).Err(err).Msg("corrupted list record, treating as empty")
		return fileListEnvelope{}
	}
	return env
}

func (f *File) LRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	env := f.readList(f.listPath(key))
	items := sliceRange(env.Items, start, stop)
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out, nil
}

func (f *File) LTrim(ctx context.Context, key string, start, stop int) error {
	path := f.listPath(key)
	return f.withLock(path, func() error {
		env := f.readList(path)
		env.Items = sliceRange(env.Items, start, stop)
		env.UpdatedAt = time.Now().UnixMilli()
		return atomicWrite(path, env)
	})
}

func (f *File) LLen(ctx context.Context, key string) (int, error) {
	return len(f.readList(f.listPath(key)).Items), nil
}

func (f *File) Incr(ctx context.Context, key string, by int64) (int64, error) {
	path := f.keyPath(key)
	var result int64
	err := f.withLock(path, func() error {
		var cur int64
		if v, ok, _ := f.Get(ctx, key); ok {
			_ = json.Unmarshal(v, &cur)
		}
		cur += by
		data, err := json.Marshal(cur)
		if err != nil {
			return err
		}
		now := time.Now().UnixMilli()
		return atomicWrite(path, fileEnvelope{Value: data, CreatedAt: now, UpdatedAt: now})
	})
	if err != nil {
		return 0, err
	}
	if v, ok, _ := f.Get(ctx, key); ok {
		_ = json.Unmarshal(v, &result)
	}
	return result, nil
}
