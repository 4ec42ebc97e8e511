package rendercache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// SetupSchema initializes the artifact index table in the provided database.
// This function should be called once on a new database before any other
// operations are performed. It is idempotent and safe to call on an
// already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS render_artifacts (
    artifact_id INTEGER PRIMARY KEY,
    path TEXT NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    fingerprint TEXT NOT NULL,
    filename TEXT NOT NULL,
    byte_size INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (path, width, height, fingerprint)
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("could not create artifact schema: %w", err)
	}
	return nil
}

// Key identifies one cached artifact: the asset path it was rendered from,
// the resolved pixel size, and the source's content fingerprint. A source
// change produces a new fingerprint and therefore a distinct key; the stale
// entry is superseded rather than overwritten.
type Key struct {
	Path        string
	Width       int
	Height      int
	Fingerprint string
}

// filename derives the on-disk artifact name for a key. Hashing the full
// tuple keeps names collision-free across distinct keys and reproducible for
// identical ones.
func (k Key) filename(ext string) string {
	h := sha256.New()
	h.Write([]byte(k.Path))
	h.Write([]byte{0})
	var dims [16]byte
	binary.LittleEndian.PutUint64(dims[0:8], uint64(k.Width))
	binary.LittleEndian.PutUint64(dims[8:16], uint64(k.Height))
	h.Write(dims[:])
	h.Write([]byte(k.Fingerprint))
	return hex.EncodeToString(h.Sum(nil)) + ext
}

// PathStats summarizes the cached artifacts for one asset path.
type PathStats struct {
	Path      string `json:"path"`
	Artifacts int    `json:"artifacts"`
	ByteSize  int64  `json:"byte_size"`
}

// Cache stores rendered artifacts in a directory and tracks them in a
// SQLite index. All methods are concurrent-safe.
type Cache struct {
	logger *slog.Logger
	db     *sql.DB
	dir    string

	stmtInsert *sql.Stmt
	stmtTouch  *sql.Stmt
	stmtStats  *sql.Stmt

	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

// New creates a Cache writing artifacts into dir, creating the directory if
// needed, and prepares the index statements.
func New(logger *slog.Logger, db *sql.DB, dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create cache directory: %w", err)
	}

	c := &Cache{
		logger: logger,
		db:     db,
		dir:    dir,
		locks:  make(map[Key]*sync.Mutex),
	}

	var err error
	c.stmtInsert, err = db.Prepare(`
INSERT INTO render_artifacts (path, width, height, fingerprint, filename, byte_size, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path, width, height, fingerprint) DO UPDATE
SET filename = excluded.filename, byte_size = excluded.byte_size, created_at = excluded.created_at;
`)
	if err != nil {
		return nil, fmt.Errorf("could not prepare insert statement: %w", err)
	}
	c.stmtTouch, err = db.Prepare(`
UPDATE render_artifacts SET created_at = ?
WHERE path = ? AND width = ? AND height = ? AND fingerprint = ?;
`)
	if err != nil {
		return nil, fmt.Errorf("could not prepare touch statement: %w", err)
	}
	c.stmtStats, err = db.Prepare(`
SELECT path, COUNT(*), SUM(byte_size) FROM render_artifacts GROUP BY path ORDER BY path;
`)
	if err != nil {
		return nil, fmt.Errorf("could not prepare stats statement: %w", err)
	}

	return c, nil
}

// Close releases the prepared statements. The database handle itself is
// owned by the caller and stays open.
func (c *Cache) Close() {
	_ = c.stmtInsert.Close()
	_ = c.stmtTouch.Close()
	_ = c.stmtStats.Close()
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// GetOrRender returns the cached artifact for key, invoking render only on a
// miss. The result is persisted with an atomic rename before the index row is
// written, so a crash can never leave a half-written artifact that a later
// read would treat as valid. At most one render per key runs at a time:
// concurrent callers for the same key block until the first completes, then
// observe the now-populated cache.
func (c *Cache) GetOrRender(ctx context.Context, key Key, ext string, render func() ([]byte, error)) ([]byte, error) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	file := filepath.Join(c.dir, key.filename(ext))
	if data, err := os.ReadFile(file); err == nil {
		// Refresh the index timestamp so a key that is still being served
		// is never treated as superseded by a younger row for the same
		// path and size (a reverted fingerprint hits here without ever
		// re-inserting).
		if _, terr := c.stmtTouch.ExecContext(ctx, time.Now().UnixNano(),
			key.Path, key.Width, key.Height, key.Fingerprint); terr != nil {
			c.logger.WarnContext(ctx, "Failed to touch artifact index row",
				slog.String("path", key.Path), slog.Any("error", terr))
		}
		return data, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read cached artifact: %w", err)
	}

	data, err := render()
	if err != nil {
		return nil, err
	}

	if err = atomic.WriteFile(file, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to persist artifact: %w", err)
	}
	_, err = c.stmtInsert.ExecContext(ctx,
		key.Path, key.Width, key.Height, key.Fingerprint,
		key.filename(ext), int64(len(data)), time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to index artifact: %w", err)
	}

	c.logger.DebugContext(ctx, "Artifact rendered and cached",
		slog.String("path", key.Path),
		slog.Int("width", key.Width),
		slog.Int("height", key.Height),
		slog.Int("bytes", len(data)),
	)
	return data, nil
}

// Prune removes artifacts that have been superseded: entries whose
// (path, width, height) has a more recently written or served entry. Cache
// hits refresh created_at, so the fingerprint currently being served always
// survives even after a revert to an older one. It returns the number of
// artifacts removed.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	rows, err := c.db.QueryContext(ctx, `
SELECT artifact_id, filename FROM render_artifacts a
WHERE EXISTS (
    SELECT 1 FROM render_artifacts b
    WHERE b.path = a.path AND b.width = a.width AND b.height = a.height
      AND (b.created_at > a.created_at
           OR (b.created_at = a.created_at AND b.artifact_id > a.artifact_id))
);
`)
	if err != nil {
		return 0, fmt.Errorf("could not query superseded artifacts: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	type stale struct {
		id       int64
		filename string
	}
	var victims []stale
	for rows.Next() {
		var s stale
		if err = rows.Scan(&s.id, &s.filename); err != nil {
			return 0, err
		}
		victims = append(victims, s)
	}
	if err = rows.Err(); err != nil {
		return 0, err
	}

	removed := 0
	for _, s := range victims {
		if err = os.Remove(filepath.Join(c.dir, s.filename)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove artifact %q: %w", s.filename, err)
		}
		if _, err = c.db.ExecContext(ctx, "DELETE FROM render_artifacts WHERE artifact_id = ?", s.id); err != nil {
			return removed, fmt.Errorf("failed to remove index row %d: %w", s.id, err)
		}
		removed++
	}

	if removed > 0 {
		c.logger.InfoContext(ctx, "Pruned superseded artifacts", slog.Int("removed", removed))
	}
	return removed, nil
}

// Stats reports the indexed artifact count and total byte size per path.
func (c *Cache) Stats(ctx context.Context) ([]PathStats, error) {
	rows, err := c.stmtStats.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var stats []PathStats
	for rows.Next() {
		var s PathStats
		if err = rows.Scan(&s.Path, &s.Artifacts, &s.ByteSize); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// keyLock returns the mutex guarding renders for key. Locks are retained for
// the cache's lifetime; the key space is bounded by the configured asset set
// and requested sizes.
func (c *Cache) keyLock(key Key) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}
