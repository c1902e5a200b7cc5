// Package cache stores built artifacts in a SQLite database, keyed by a
// fingerprint of the function closure they were built from.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/funvibe/numfn/internal/ast"
	"github.com/funvibe/numfn/internal/prettyprinter"
)

// formatVersion is bumped when the canonical form or any stored artifact
// format changes, so that stale rows are never matched.
const formatVersion = "v1"

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	key        TEXT PRIMARY KEY,
	id         TEXT NOT NULL,
	function   TEXT NOT NULL,
	backend    TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	hits       INTEGER NOT NULL DEFAULT 0
);`

// Cache is safe for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
}

// Stats summarizes the cache content.
type Stats struct {
	Entries int
	Bytes   int64
	Hits    int64
	// ByBackend counts entries per backend name.
	ByBackend map[string]int
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache %s: %w", path, err)
	}
	return &Cache{db: db, path: path}, nil
}

func (c *Cache) Path() string { return c.path }

func (c *Cache) Close() error {
	return c.db.Close()
}

// Key computes the cache key of the artifact a backend builds from closure,
// the definitions reachable from a root function. The key covers the
// canonical text of every definition, the backend name and the artifact
// format.
func Key(closure []*ast.FunctionDefinition, backend, format string) string {
	h := sha256.New()
	for _, def := range closure {
		h.Write([]byte(prettyprinter.Function(def)))
		h.Write([]byte("\x00"))
	}
	h.Write([]byte(backend))
	h.Write([]byte("\x00"))
	h.Write([]byte(format))
	h.Write([]byte("\x00"))
	h.Write([]byte(formatVersion))

	return hex.EncodeToString(h.Sum(nil))[:16] // First 16 hex chars = 64 bits
}

// Lookup returns the artifact stored under key.
func (c *Cache) Lookup(key string) ([]byte, bool, error) {
	var data []byte
	err := c.db.QueryRow(`SELECT data FROM artifacts WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if _, err := c.db.Exec(`UPDATE artifacts SET hits = hits + 1 WHERE key = ?`, key); err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	return data, true, nil
}

// Store saves data under key, replacing an earlier entry.
func (c *Cache) Store(key, function, backend string, data []byte) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO artifacts (key, id, function, backend, data, created_at, hits)
		 VALUES (?, ?, ?, ?, ?, ?, 0)`,
		key, uuid.NewString(), function, backend, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Clean removes every entry and returns how many there were.
func (c *Cache) Clean() (int64, error) {
	res, err := c.db.Exec(`DELETE FROM artifacts`)
	if err != nil {
		return 0, fmt.Errorf("cache clean: %w", err)
	}
	return res.RowsAffected()
}

func (c *Cache) Stats() (Stats, error) {
	s := Stats{ByBackend: make(map[string]int)}
	rows, err := c.db.Query(`SELECT backend, COUNT(*), COALESCE(SUM(LENGTH(data)), 0), COALESCE(SUM(hits), 0)
		FROM artifacts GROUP BY backend`)
	if err != nil {
		return s, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			backend string
			n       int
			size    int64
			hits    int64
		)
		if err := rows.Scan(&backend, &n, &size, &hits); err != nil {
			return s, fmt.Errorf("cache stats: %w", err)
		}
		s.ByBackend[backend] = n
		s.Entries += n
		s.Bytes += size
		s.Hits += hits
	}
	return s, rows.Err()
}
