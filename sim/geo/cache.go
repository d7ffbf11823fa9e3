package geo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Cache kinds.
const (
	KindGraph      = "graph"
	KindNode       = "node"
	KindFloodDepth = "flood_depth"
)

// Cache is a persistent key/value store for lookup results, backed by a
// single SQLite file. Values are stored snappy-compressed.
type Cache struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// OpenCache opens (creating if needed) the cache database at path.
// ":memory:" gives a throwaway cache.
func OpenCache(ctx context.Context, path string) (*Cache, error) {
	if path == "" {
		return nil, errors.New("cache path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection so ":memory:" stays a single database
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS lookups (
			key        TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			query      TEXT NOT NULL,
			value      BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}
	return &Cache{path: path, db: db}, nil
}

// Path returns the database file the cache was opened on.
func (c *Cache) Path() string { return c.path }

// Key is the stable name-based UUID of a (kind, query) pair.
func Key(kind, query string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(kind+":"+query)).String()
}

// Get returns the cached value, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, kind, query string) (value []byte, ok bool, err error) {
	db, err := c.getDB()
	if err != nil {
		return nil, false, err
	}
	var blob []byte
	err = db.QueryRowContext(ctx, `SELECT value FROM lookups WHERE key = ?`, Key(kind, query)).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	value, err = snappy.Decode(nil, blob)
	if err != nil {
		return nil, false, fmt.Errorf("decode cached %s %q: %w", kind, query, err)
	}
	return value, true, nil
}

// Put stores value, replacing any previous entry for the same key.
func (c *Cache) Put(ctx context.Context, kind, query string, value []byte) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO lookups (key, kind, query, value, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at
	`, Key(kind, query), kind, query, snappy.Encode(nil, value), time.Now().Unix())
	return err
}

// Len counts cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lookups`).Scan(&n)
	return n, err
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Cache) getDB() (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil, errors.New("cache is closed")
	}
	return c.db, nil
}
