package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rs/zerolog"
)

var unsafeTableChar = regexp.MustCompile(`[^A-Za-z0-9_]`)

func sanitizeTableSuffix(namespace string) string {
	s := unsafeTableChar.ReplaceAllString(namespace, "_")
	if s == "" {
		s = "default"
	}
	return s
}

// SQLite is the embedded SQL backend: one database file per
// namespace, a key/value table with a partial index on expiry, a second
// table for append-only list rows, WAL journaling, and pre-compiled
// prepared statements for every hot path.
type SQLite struct {
	db        *sql.DB
	table     string
	listTable string
	log       zerolog.Logger
	dbPath    string

	stmtGet           *sql.Stmt
	stmtSet           *sql.Stmt
	stmtDelete        *sql.Stmt
	stmtHas           *sql.Stmt
	stmtKeysNotExpd   *sql.Stmt
	stmtCleanupExpd   *sql.Stmt
	stmtClear         *sql.Stmt
	stmtListInsert    *sql.Stmt
	stmtListRange     *sql.Stmt
	stmtListLen       *sql.Stmt
	stmtListTrimBelow *sql.Stmt
}

// NewSQLite constructs a SQLite backend. root/sqlite/<namespace>.db is
// created on Connect.
func NewSQLite(root, namespace string, log zerolog.Logger) *SQLite {
	suffix := sanitizeTableSuffix(namespace)
	return &SQLite{
		dbPath:    filepath.Join(root, "sqlite", namespace+".db"),
		table:     "storage_" + suffix,
		listTable: "storage_list_" + suffix,
		log:       log,
	}
}

func (s *SQLite) BackendType() Type { return TypeSQL }

func (s *SQLite) Connect(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
		return fmt.Errorf("backend/sqlite: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		return fmt.Errorf("backend/sqlite: open %s: %w", s.dbPath, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("backend/sqlite: %s: %w", pragma, err)
		}
	}

	schema := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires INTEGER NULL
		)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires) WHERE expires IS NOT NULL`, s.table, s.table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			item TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`, s.listTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_key_created ON %s(key, created_at)`, s.listTable, s.listTable),
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return fmt.Errorf("backend/sqlite: migrate: %w", err)
		}
	}

	if err := s.prepare(ctx, db); err != nil {
		db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLite) prepare(ctx context.Context, db *sql.DB) error {
	var err error
	prep := func(query string) *sql.Stmt {
		if err != nil {
			return nil
		}
		var st *sql.Stmt
		st, err = db.PrepareContext(ctx, query)
		return st
	}

	s.stmtGet = prep(fmt.Sprintf(`SELECT value, expires FROM %s WHERE key = ?`, s.table))
	s.stmtSet = prep(fmt.Sprintf(`INSERT INTO %s(key, value, expires) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires = excluded.expires`, s.table))
	s.stmtDelete = prep(fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.table))
	s.stmtHas = prep(fmt.Sprintf(`SELECT 1 FROM %s WHERE key = ? AND (expires IS NULL OR expires > ?)`, s.table))
	s.stmtKeysNotExpd = prep(fmt.Sprintf(`SELECT key FROM %s WHERE expires IS NULL OR expires > ?`, s.table))
	s.stmtCleanupExpd = prep(fmt.Sprintf(`DELETE FROM %s WHERE expires IS NOT NULL AND expires <= ?`, s.table))
	s.stmtClear = prep(fmt.Sprintf(`DELETE FROM %s`, s.table))
	s.stmtListInsert = prep(fmt.Sprintf(`INSERT INTO %s(key, item, created_at) VALUES (?, ?, ?)`, s.listTable))
	s.stmtListRange = prep(fmt.Sprintf(`SELECT item FROM %s WHERE key = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, s.listTable))
	s.stmtListLen = prep(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE key = ?`, s.listTable))
	s.stmtListTrimBelow = prep(fmt.Sprintf(`DELETE FROM %s WHERE key = ? AND id NOT IN (
		SELECT id FROM %s WHERE key = ? ORDER BY created_at DESC, id DESC LIMIT ?
	)`, s.listTable, s.listTable))
	return err
}

// Disconnect prunes expired rows (close must first run the cleanup
// statement) and releases the connection and all prepared statements.
func (s *SQLite) Disconnect(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if s.stmtCleanupExpd != nil {
		_, _ = s.stmtCleanupExpd.ExecContext(ctx, time.Now().UnixMilli())
	}
	for _, st := range []*sql.Stmt{
		s.stmtGet, s.stmtSet, s.stmtDelete, s.stmtHas, s.stmtKeysNotExpd,
		s.stmtCleanupExpd, s.stmtClear, s.stmtListInsert, s.stmtListRange,
		s.stmtListLen, s.stmtListTrimBelow,
	} {
		if st != nil {
			st.Close()
		}
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLite) IsConnected() bool { return s.db != nil }

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	var expires sql.NullInt64
	err := s.stmtGet.QueryRowContext(ctx, key).Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("backend/sqlite: get: %w", err)
	}
	if expires.Valid && time.Now().UnixMilli() > expires.Int64 {
		_, _ = s.stmtDelete.ExecContext(ctx, key)
		return nil, false, nil
	}
	return []byte(value), true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires sql.NullInt64
	if ttl > 0 {
		expires = sql.NullInt64{Int64: time.Now().Add(ttl).UnixMilli(), Valid: true}
	}
	_, err := s.stmtSet.ExecContext(ctx, key, string(value), expires)
	if err != nil {
		return fmt.Errorf("backend/sqlite: set: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) (bool, error) {
	existed, err := s.Has(ctx, key)
	if err != nil {
		return false, err
	}
	if _, err := s.stmtDelete.ExecContext(ctx, key); err != nil {
		return false, fmt.Errorf("backend/sqlite: delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, s.listTable), key); err != nil {
		return false, fmt.Errorf("backend/sqlite: delete list: %w", err)
	}
	return existed, nil
}

func (s *SQLite) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.stmtHas.QueryRowContext(ctx, key, time.Now().UnixMilli()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("backend/sqlite: has: %w", err)
	}
	return true, nil
}

func (s *SQLite) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, err := s.Get(ctx, k); err != nil {
			return nil, err
		} else if ok {
			out[k] = v
		}
	}
	return out, nil
}

func (s *SQLite) MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("backend/sqlite: begin tx: %w", err)
	}
	stmt := tx.StmtContext(ctx, s.stmtSet)
	for k, v := range values {
		var expires sql.NullInt64
		if ttl > 0 {
			expires = sql.NullInt64{Int64: time.Now().Add(ttl).UnixMilli(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, k, string(v), expires); err != nil {
			tx.Rollback()
			return fmt.Errorf("backend/sqlite: mset: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Keys(ctx context.Context, pattern string) ([]string, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil, err
	}
	rows, err := s.stmtKeysNotExpd.QueryContext(ctx, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("backend/sqlite: keys: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		if re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out, rows.Err()
}

func (s *SQLite) DeletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := s.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if existed, err := s.Delete(ctx, k); err != nil {
			return n, err
		} else if existed {
			n++
		}
	}
	return n, nil
}

func (s *SQLite) LPush(ctx context.Context, key string, values ...[]byte) error {
	now := time.Now().UnixNano()
	for i, v := range values {
		if _, err := s.stmtListInsert.ExecContext(ctx, key, string(v), now+int64(i)); err != nil {
			return fmt.Errorf("backend/sqlite: lpush: %w", err)
		}
	}
	return nil
}

func (s *SQLite) LRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	limit := stop - start + 1
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.stmtListRange.QueryContext(ctx, key, limit, start)
	if err != nil {
		return nil, fmt.Errorf("backend/sqlite: lrange: %w", err)
	}
	defer rows.Close()
	var items [][]byte
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, err
		}
		items = append(items, []byte(item))
	}
	// Rows come back most-recent-first; callers expect chronological order.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, rows.Err()
}

func (s *SQLite) LTrim(ctx context.Context, key string, start, stop int) error {
	keep := stop - start + 1
	if keep <= 0 {
		keep = 0
	}
	_, err := s.stmtListTrimBelow.ExecContext(ctx, key, key, keep)
	if err != nil {
		return fmt.Errorf("backend/sqlite: ltrim: %w", err)
	}
	return nil
}

func (s *SQLite) LLen(ctx context.Context, key string) (int, error) {
	var n int
	if err := s.stmtListLen.QueryRowContext(ctx, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("backend/sqlite: llen: %w", err)
	}
	return n, nil
}

// Incr is atomic across goroutines of this process: the increment happens
// inside a single SQLite transaction guarded by the database's own locking.
func (s *SQLite) Incr(ctx context.Context, key string, by int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("backend/sqlite: incr begin: %w", err)
	}
	defer tx.Rollback()

	var cur int64
	row := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, s.table), key)
	var raw string
	if err := row.Scan(&raw); err == nil {
		fmt.Sscanf(raw, "%d", &cur)
	} else if err != sql.ErrNoRows {
		return 0, fmt.Errorf("backend/sqlite: incr read: %w", err)
	}

	cur += by
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(key, value, expires) VALUES (?, ?, NULL)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, s.table), key, fmt.Sprintf("%d", cur)); err != nil {
		return 0, fmt.Errorf("backend/sqlite: incr write: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("backend/sqlite: incr commit: %w", err)
	}
	return cur, nil
}
