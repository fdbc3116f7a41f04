package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"reelscope/internal/fileutil"
)

// FilesystemBackend stores objects under a local directory and records
// their metadata in a Catalog.
type FilesystemBackend struct {
	root          string
	publicBaseURL string
	catalog       *Catalog
}

// NewFilesystemBackend opens the catalog at catalogPath and serves objects
// from root.
func NewFilesystemBackend(ctx context.Context, root, catalogPath, publicBaseURL string) (*FilesystemBackend, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("store directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	catalog, err := OpenCatalog(ctx, catalogPath)
	if err != nil {
		return nil, err
	}
	return &FilesystemBackend{root: root, publicBaseURL: publicBaseURL, catalog: catalog}, nil
}

func (b *FilesystemBackend) Name() string { return "filesystem" }

// Root returns the object directory.
func (b *FilesystemBackend) Root() string { return b.root }

// Catalog exposes the metadata catalog.
func (b *FilesystemBackend) Catalog() *Catalog { return b.catalog }

// Close closes the catalog.
func (b *FilesystemBackend) Close() error { return b.catalog.Close() }

// FindByContentAddress consults the catalog first. A catalogued key whose
// file has vanished is dropped; an uncatalogued file that exists on disk is
// treated as present.
func (b *FilesystemBackend) FindByContentAddress(ctx context.Context, key string) (string, bool, error) {
	objectPath, err := b.objectPath(key)
	if err != nil {
		return "", false, err
	}
	_, found, err := b.catalog.Lookup(ctx, key)
	if err != nil {
		return "", false, err
	}
	exists, err := fileExists(objectPath)
	if err != nil {
		return "", false, err
	}
	switch {
	case found && !exists:
		if err := b.catalog.Remove(ctx, key); err != nil {
			return "", false, err
		}
		return "", false, nil
	case !exists:
		return "", false, nil
	}
	return b.PublicURL(key), true, nil
}

func (b *FilesystemBackend) Upload(ctx context.Context, key string, body io.Reader, size int64, meta ObjectMeta) (string, error) {
	objectPath, err := b.objectPath(key)
	if err != nil {
		return "", err
	}
	written, err := fileutil.WriteVerified(contextReader{ctx: ctx, r: body}, objectPath, meta.Address)
	if err != nil {
		return "", err
	}
	if size > 0 && written != size {
		_ = os.Remove(objectPath)
		return "", fmt.Errorf("short write: expected %d bytes, wrote %d", size, written)
	}
	if err := b.catalog.Record(ctx, CatalogEntry{
		Key:         key,
		Address:     meta.Address,
		SizeBytes:   written,
		ContentType: meta.ContentType,
		Title:       meta.Title,
		Author:      meta.Author,
		VideoID:     meta.VideoID,
		SourceURL:   meta.SourceURL,
		UploadedAt:  meta.UploadedAt,
	}); err != nil {
		return "", fmt.Errorf("record catalog entry: %w", err)
	}
	return b.PublicURL(key), nil
}

// HealthCheck verifies the object directory is writable and the catalog is reachable.
func (b *FilesystemBackend) HealthCheck(ctx context.Context) error {
	if err := unix.Access(b.root, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("store directory %s not writable: %w", b.root, err)
	}
	return b.catalog.Ping(ctx)
}

// PublicURL returns the address an object is served from.
func (b *FilesystemBackend) PublicURL(key string) string {
	if b.publicBaseURL != "" {
		return strings.TrimRight(b.publicBaseURL, "/") + "/" + (&url.URL{Path: key}).EscapedPath()
	}
	return (&url.URL{Scheme: "file", Path: filepath.Join(b.root, filepath.FromSlash(key))}).String()
}

// objectPath maps key into root, rejecting keys that escape it.
func (b *FilesystemBackend) objectPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(b.root, clean), nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
