package state

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// SQLiteBackend persists state in a single sqlite table. It satisfies the
// same Backend contract as MemoryBackend so the two are interchangeable at
// the persisted-state boundary.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and initializes if needed) the database at path.
// Use ":memory:" for an ephemeral database in tests.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite backend: %w", err)
	}
	// Serialized access keeps per-scope write ordering simple; the manager
	// layers its own read/write locking on top.
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS spell_state (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Get implements Backend.
func (s *SQLiteBackend) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM spell_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite get: %w", err)
	}
	return value, true, nil
}

// Set implements Backend.
func (s *SQLiteBackend) Set(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO spell_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (s *SQLiteBackend) Delete(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM spell_state WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("sqlite delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite delete: %w", err)
	}
	return n > 0, nil
}

// ListKeys implements Backend.
func (s *SQLiteBackend) ListKeys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM spell_state WHERE key LIKE ? ESCAPE '\' ORDER BY key`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("sqlite list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite list: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error { return s.db.Close() }

// escapeLike escapes LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
