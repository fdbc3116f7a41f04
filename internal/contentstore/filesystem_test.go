package contentstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFilesystemBackend(t *testing.T, publicBase string) *FilesystemBackend {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewFilesystemBackend(context.Background(), filepath.Join(dir, "objects"), filepath.Join(dir, "catalog.db"), publicBase)
	if err != nil {
		t.Fatalf("NewFilesystemBackend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestFilesystemBackendStoreAndDedup(t *testing.T) {
	backend := newFilesystemBackend(t, "http://127.0.0.1:7489/media")
	store := New(backend)
	staging := t.TempDir()
	content := bytes.Repeat([]byte("mp4"), 2048)

	first, err := store.Put(context.Background(), stageFile(t, staging, "a.mp4", content), Metadata{Title: "猫", VideoID: "7331"}, nil)
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if first.IsDuplicate {
		t.Fatal("first put should upload")
	}
	if first.PublicURL != "http://127.0.0.1:7489/media/"+first.Key {
		t.Fatalf("unexpected public url %q", first.PublicURL)
	}
	stored, err := os.ReadFile(filepath.Join(backend.Root(), filepath.FromSlash(first.Key)))
	if err != nil || !bytes.Equal(stored, content) {
		t.Fatalf("object not written (%v)", err)
	}

	entry, found, err := backend.Catalog().Lookup(context.Background(), first.Key)
	if err != nil || !found {
		t.Fatalf("catalog entry missing: %v", err)
	}
	if entry.Address != first.Address || entry.Title != "猫" || entry.VideoID != "7331" || entry.SizeBytes != int64(len(content)) {
		t.Fatalf("unexpected catalog entry %+v", entry)
	}

	second, err := store.Put(context.Background(), stageFile(t, staging, "b.mp4", content), Metadata{}, nil)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if !second.IsDuplicate || second.Key != first.Key {
		t.Fatalf("expected duplicate of %s, got %+v", first.Key, second)
	}
	if n, _ := backend.Catalog().Count(context.Background()); n != 1 {
		t.Fatalf("expected 1 catalog entry, got %d", n)
	}
}

func TestFilesystemBackendDropsStaleCatalogEntry(t *testing.T) {
	backend := newFilesystemBackend(t, "")
	ctx := context.Background()
	key := "videos/" + strings.Repeat("a", 64) + ".mp4"
	if err := backend.Catalog().Record(ctx, CatalogEntry{Key: key, Address: strings.Repeat("a", 64), SizeBytes: 3}); err != nil {
		t.Fatal(err)
	}

	_, found, err := backend.FindByContentAddress(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("entry without a file should not be found")
	}
	if _, ok, _ := backend.Catalog().Lookup(ctx, key); ok {
		t.Fatal("stale entry should be removed")
	}
}

func TestFilesystemBackendFindsUncataloguedFile(t *testing.T) {
	backend := newFilesystemBackend(t, "")
	key := "videos/abc.mp4"
	path := filepath.Join(backend.Root(), "videos", "abc.mp4")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	url, found, err := backend.FindByContentAddress(context.Background(), key)
	if err != nil || !found {
		t.Fatalf("expected found, got %v %v", found, err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("expected file url, got %q", url)
	}
}

func TestFilesystemBackendRejectsEscapingKey(t *testing.T) {
	backend := newFilesystemBackend(t, "")
	if _, _, err := backend.FindByContentAddress(context.Background(), "../outside.mp4"); err == nil {
		t.Fatal("expected invalid key error")
	}
}

func TestFilesystemBackendRejectsHashMismatch(t *testing.T) {
	backend := newFilesystemBackend(t, "")
	_, err := backend.Upload(context.Background(), "videos/x.mp4", strings.NewReader("data"), 4, ObjectMeta{Address: strings.Repeat("0", 64)})
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	if _, statErr := os.Stat(filepath.Join(backend.Root(), "videos", "x.mp4")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("mismatched object should not be kept")
	}
}

func TestCatalogSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	catalog, err := OpenCatalog(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := catalog.db.ExecContext(ctx, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	_ = catalog.Close()

	if _, err := OpenCatalog(ctx, path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestFilesystemBackendHealthCheck(t *testing.T) {
	backend := newFilesystemBackend(t, "")
	if err := backend.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}
