// Package memstore implements the Persistent Memory Store (SPEC_FULL.md
// §4.6): a keyed, categorized value store living outside the agent's
// context window, backed by SQLite per the table definition in §6.
//
// Adapted from the teacher's internal/memory/backend/sqlitevec (the
// database/sql + modernc.org/sqlite wiring, schema-on-init idiom) but
// simplified from its vector/embedding store down to the spec's plain
// keyed store: no embeddings, no similarity search, just store/retrieve/
// search/list/clear over (key, value, category).
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Entry is the persistent memory entry shape named in SPEC_FULL.md §3.
type Entry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	AccessCount int       `json:"access_count"`
}

// Store is the process-wide persistent key-value memory store. It is
// serialized by its own locking (SPEC_FULL.md §5): callers never need an
// external mutex around Store operations.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	category TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_updated_at ON memories(updated_at);
`

// Open opens (creating if necessary) the SQLite-backed store at path.
// An empty path opens an in-memory database, useful for tests.
func Open(path string) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memstore: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// Store inserts a new entry or, if key already exists, updates its value
// and updated_at while preserving created_at and access_count — the
// idempotent-update behavior required by SPEC_FULL.md §8.
func (s *Store) Store(ctx context.Context, key, value, category string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowISO()
	existing, err := s.getLocked(ctx, key)
	if err == nil {
		_, err := s.db.ExecContext(ctx,
			`UPDATE memories SET value = ?, category = ?, updated_at = ? WHERE key = ?`,
			value, category, now, key)
		if err != nil {
			return Entry{}, fmt.Errorf("memstore: update %s: %w", key, err)
		}
		existing.Value = value
		existing.Category = category
		existing.UpdatedAt = parseTime(now)
		return existing, nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (key, value, category, created_at, updated_at, access_count) VALUES (?, ?, ?, ?, ?, 0)`,
		key, value, category, now, now)
	if err != nil {
		return Entry{}, fmt.Errorf("memstore: insert %s: %w", key, err)
	}
	return Entry{Key: key, Value: value, Category: category, CreatedAt: parseTime(now), UpdatedAt: parseTime(now)}, nil
}

// Retrieve returns the entry for key and increments its access_count by
// one. ErrNotFound is returned if no entry exists under key.
func (s *Store) Retrieve(ctx context.Context, key string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.getLocked(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE memories SET access_count = access_count + 1 WHERE key = ?`, key); err != nil {
		return Entry{}, fmt.Errorf("memstore: bump access_count %s: %w", key, err)
	}
	entry.AccessCount++
	return entry, nil
}

func (s *Store) getLocked(ctx context.Context, key string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, value, category, created_at, updated_at, access_count FROM memories WHERE key = ?`, key)
	var e Entry
	var category sql.NullString
	var created, updated string
	if err := row.Scan(&e.Key, &e.Value, &category, &created, &updated, &e.AccessCount); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("memstore: query %s: %w", key, err)
	}
	e.Category = category.String
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return e, nil
}

// Search returns every entry whose key or value contains substr.
func (s *Store) Search(ctx context.Context, substr string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, category, created_at, updated_at, access_count FROM memories
		 WHERE key LIKE ? OR value LIKE ? ORDER BY updated_at DESC`,
		"%"+substr+"%", "%"+substr+"%")
	if err != nil {
		return nil, fmt.Errorf("memstore: search: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListResult is the return shape of List: matching entries plus a count
// of entries per category across the whole store.
type ListResult struct {
	Entries          []Entry
	CategoryCounts   map[string]int
}

// List returns entries optionally filtered by category (empty = all),
// along with per-category counts across the entire store.
func (s *Store) List(ctx context.Context, category string) (ListResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	var err error
	if category == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT key, value, category, created_at, updated_at, access_count FROM memories ORDER BY updated_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT key, value, category, created_at, updated_at, access_count FROM memories WHERE category = ? ORDER BY updated_at DESC`,
			category)
	}
	if err != nil {
		return ListResult{}, fmt.Errorf("memstore: list: %w", err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return ListResult{}, err
	}

	counts, err := s.categoryCountsLocked(ctx)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Entries: entries, CategoryCounts: counts}, nil
}

func (s *Store) categoryCountsLocked(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(category, ''), COUNT(*) FROM memories GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("memstore: category counts: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

// Clear removes entries. Exactly one of key or category should be set; if
// both are empty, every entry is cleared. Returns the number removed.
func (s *Store) Clear(ctx context.Context, key, category string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	switch {
	case key != "":
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories WHERE key = ?`, key)
	case category != "":
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories WHERE category = ?`, category)
	default:
		res, err = s.db.ExecContext(ctx, `DELETE FROM memories`)
	}
	if err != nil {
		return 0, fmt.Errorf("memstore: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var category sql.NullString
		var created, updated string
		if err := rows.Scan(&e.Key, &e.Value, &category, &created, &updated, &e.AccessCount); err != nil {
			return nil, err
		}
		e.Category = category.String
		e.CreatedAt = parseTime(created)
		e.UpdatedAt = parseTime(updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ErrNotFound is returned by Retrieve when no entry exists under a key.
var ErrNotFound = fmt.Errorf("memstore: key not found")
