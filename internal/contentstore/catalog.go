package contentstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// catalogSchemaVersion is bumped whenever schema.sql changes. Older catalogs
// must be deleted; the objects directory is rescanned lazily.
const catalogSchemaVersion = 1

// ErrSchemaMismatch indicates the catalog was created by a different schema version.
var ErrSchemaMismatch = errors.New("catalog schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// CatalogEntry is one catalogued object.
type CatalogEntry struct {
	Key         string
	Address     string
	SizeBytes   int64
	ContentType string
	Title       string
	Author      string
	VideoID     string
	SourceURL   string
	UploadedAt  time.Time
}

// Catalog records metadata for objects held by the filesystem backend.
type Catalog struct {
	db   *sql.DB
	path string
}

// OpenCatalog opens or creates the SQLite catalog at path.
func OpenCatalog(ctx context.Context, path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	c := &Catalog{db: db, path: path}
	if err := c.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Path returns the database file location.
func (c *Catalog) Path() string { return c.path }

func (c *Catalog) initSchema(ctx context.Context) error {
	var tableExists int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return c.createSchema(ctx)
	}

	var version int
	if err := c.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != catalogSchemaVersion {
		return fmt.Errorf("%w: catalog %s has version %d, expected %d (delete it to rebuild)",
			ErrSchemaMismatch, c.path, version, catalogSchemaVersion)
	}
	return nil
}

func (c *Catalog) createSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", catalogSchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Lookup returns the entry stored under key.
func (c *Catalog) Lookup(ctx context.Context, key string) (CatalogEntry, bool, error) {
	var (
		entry      CatalogEntry
		uploadedAt string
	)
	err := retryOnBusy(ctx, func() error {
		return c.db.QueryRowContext(ctx, `SELECT key, address, size_bytes, content_type, title, author, video_id, source_url, uploaded_at
			FROM objects WHERE key = ?`, key).Scan(
			&entry.Key, &entry.Address, &entry.SizeBytes, &entry.ContentType,
			&entry.Title, &entry.Author, &entry.VideoID, &entry.SourceURL, &uploadedAt,
		)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return CatalogEntry{}, false, nil
	}
	if err != nil {
		return CatalogEntry{}, false, fmt.Errorf("lookup %s: %w", key, err)
	}
	entry.UploadedAt, _ = time.Parse(time.RFC3339Nano, uploadedAt)
	return entry, true, nil
}

// Record inserts or replaces the entry for e.Key.
func (c *Catalog) Record(ctx context.Context, e CatalogEntry) error {
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now()
	}
	return c.execWithRetry(ctx, `INSERT INTO objects
		(key, address, size_bytes, content_type, title, author, video_id, source_url, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			address = excluded.address,
			size_bytes = excluded.size_bytes,
			content_type = excluded.content_type,
			title = excluded.title,
			author = excluded.author,
			video_id = excluded.video_id,
			source_url = excluded.source_url,
			uploaded_at = excluded.uploaded_at`,
		e.Key, e.Address, e.SizeBytes, e.ContentType, e.Title, e.Author, e.VideoID, e.SourceURL,
		e.UploadedAt.UTC().Format(time.RFC3339Nano),
	)
}

// Remove deletes the entry for key, if any.
func (c *Catalog) Remove(ctx context.Context, key string) error {
	return c.execWithRetry(ctx, "DELETE FROM objects WHERE key = ?", key)
}

// Count returns the number of catalogued objects.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	err := retryOnBusy(ctx, func() error {
		return c.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM objects").Scan(&n)
	})
	return n, err
}

// Ping verifies the database is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Catalog) execWithRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := c.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
