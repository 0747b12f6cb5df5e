// Package tagcache persists extracted tags keyed by (path, mtime, size) so
// repeated map generations skip re-parsing files that have not changed.
package tagcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/repomapper/repomap/internal/treesitter"
)

const schema = `
CREATE TABLE IF NOT EXISTS file_tags (
	abs_path   TEXT PRIMARY KEY,
	mtime_ns   INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL,
	language   TEXT NOT NULL,
	tags_json  TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// entry is the in-memory mirror of one file_tags row.
type entry struct {
	mtimeNS  int64
	size     int64
	language string
	tags     []treesitter.Tag
}

// Cache is a (abs_path) -> (mtime_ns, size, tags) store. Validity requires
// an exact match on both mtime and size: a file whose content changed but
// whose mtime was not bumped (a common occurrence with some build tools)
// is caught once its size drifts, and vice versa.
type Cache struct {
	mu  sync.RWMutex
	mem map[string]entry

	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed tag cache at path.
// An empty path or any open failure degrades to a memory-only cache that
// is still fully usable for the lifetime of the process — it simply does
// not survive a restart.
func Open(path string) (*Cache, error) {
	c := &Cache{mem: make(map[string]entry)}
	if path == "" {
		return c, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("tagcache: falling back to memory-only cache", "error", err)
		return c, nil
	}
	db, err := openSQL(path)
	if err != nil {
		slog.Warn("tagcache: falling back to memory-only cache", "error", err)
		return c, nil
	}
	if _, err := db.Exec(schema); err != nil {
		slog.Warn("tagcache: schema init failed, falling back to memory-only cache", "error", err)
		_ = db.Close()
		return c, nil
	}
	c.db = db
	if err := c.loadAll(); err != nil {
		slog.Warn("tagcache: preload failed, continuing with empty cache", "error", err)
	}
	return c, nil
}

func (c *Cache) loadAll() error {
	rows, err := c.db.Query(`SELECT abs_path, mtime_ns, size_bytes, language, tags_json FROM file_tags`)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for rows.Next() {
		var (
			absPath, language, tagsJSON string
			mtimeNS, size                int64
		)
		if err := rows.Scan(&absPath, &mtimeNS, &size, &language, &tagsJSON); err != nil {
			return err
		}
		var tags []treesitter.Tag
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			continue
		}
		c.mem[absPath] = entry{mtimeNS: mtimeNS, size: size, language: language, tags: tags}
	}
	return rows.Err()
}

// Lookup returns the cached tags for absPath if the cached (mtime, size)
// pair matches exactly, and false otherwise.
func (c *Cache) Lookup(absPath string, mtimeNS, size int64) ([]treesitter.Tag, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.mem[absPath]
	if !ok || e.mtimeNS != mtimeNS || e.size != size {
		return nil, false
	}
	out := make([]treesitter.Tag, len(e.tags))
	copy(out, e.tags)
	return out, true
}

// Store records (or replaces) the tags for absPath under the given
// (mtime, size) identity.
func (c *Cache) Store(ctx context.Context, absPath, language string, mtimeNS, size int64, tags []treesitter.Tag) error {
	c.mu.Lock()
	c.mem[absPath] = entry{mtimeNS: mtimeNS, size: size, language: language, tags: tags}
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}

	payload, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("tagcache: marshal tags for %s: %w", absPath, err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO file_tags (abs_path, mtime_ns, size_bytes, language, tags_json, updated_at)
		VALUES (?, ?, ?, ?, ?, unixepoch())
		ON CONFLICT(abs_path) DO UPDATE SET
			mtime_ns=excluded.mtime_ns,
			size_bytes=excluded.size_bytes,
			language=excluded.language,
			tags_json=excluded.tags_json,
			updated_at=excluded.updated_at
	`, absPath, mtimeNS, size, language, string(payload))
	return err
}

// Prune deletes cache entries for paths no longer present in the universe
// of files under consideration, keeping the persisted cache bounded.
func (c *Cache) Prune(ctx context.Context, live map[string]struct{}) error {
	c.mu.Lock()
	for absPath := range c.mem {
		if _, ok := live[absPath]; !ok {
			delete(c.mem, absPath)
		}
	}
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}

	rows, err := c.db.QueryContext(ctx, `SELECT abs_path FROM file_tags`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var absPath string
		if err := rows.Scan(&absPath); err != nil {
			rows.Close()
			return err
		}
		if _, ok := live[absPath]; !ok {
			stale = append(stale, absPath)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, absPath := range stale {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM file_tags WHERE abs_path = ?`, absPath); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate drops every cached entry, forcing full re-extraction on the
// next lookup. Used by refresh mode "always".
func (c *Cache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.mem = make(map[string]entry)
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM file_tags`)
	return err
}

// Close releases the underlying database handle, if any.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
