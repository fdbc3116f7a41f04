package contentstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelscope/internal/services"
)

type memoryBackend struct {
	mu        sync.Mutex
	objects   map[string][]byte
	meta      map[string]ObjectMeta
	uploads   atomic.Int32
	lookups   atomic.Int32
	uploadErr error
	lookupErr error
	gate      chan struct{}
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{objects: map[string][]byte{}, meta: map[string]ObjectMeta{}}
}

func (m *memoryBackend) Name() string { return "memory" }

func (m *memoryBackend) FindByContentAddress(_ context.Context, key string) (string, bool, error) {
	m.lookups.Add(1)
	if m.lookupErr != nil {
		return "", false, m.lookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return "mem://" + key, ok, nil
}

func (m *memoryBackend) Upload(_ context.Context, key string, body io.Reader, _ int64, meta ObjectMeta) (string, error) {
	m.uploads.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.meta[key] = meta
	return "mem://" + key, nil
}

func (m *memoryBackend) HealthCheck(context.Context) error { return nil }

func stageFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write staging file: %v", err)
	}
	return path
}

func sha(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func TestPutUploadsOnceForIdenticalContent(t *testing.T) {
	backend := newMemoryBackend()
	store := New(backend)
	dir := t.TempDir()
	content := bytes.Repeat([]byte("same bytes "), 1000)

	first, err := store.Put(context.Background(), stageFile(t, dir, "a.mp4", content), Metadata{Title: "first"}, nil)
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	second, err := store.Put(context.Background(), stageFile(t, dir, "b.mp4", content), Metadata{Title: "second"}, nil)
	if err != nil {
		t.Fatalf("second put: %v", err)
	}

	if first.IsDuplicate {
		t.Fatal("first store should not be a duplicate")
	}
	if !second.IsDuplicate {
		t.Fatal("second store should be a duplicate")
	}
	if first.Address != sha(content) || second.Address != first.Address {
		t.Fatalf("addresses differ: %s vs %s", first.Address, second.Address)
	}
	if first.Key != "videos/"+sha(content)+".mp4" || second.Key != first.Key {
		t.Fatalf("unexpected key %q", first.Key)
	}
	if got := backend.uploads.Load(); got != 1 {
		t.Fatalf("expected 1 upload, got %d", got)
	}
	if backend.meta[first.Key].Title != "first" || backend.meta[first.Key].Address != first.Address {
		t.Fatalf("unexpected metadata %+v", backend.meta[first.Key])
	}
}

func TestPutDifferentContentDifferentKeys(t *testing.T) {
	backend := newMemoryBackend()
	store := New(backend, WithKeyPrefix("/clips/"))
	dir := t.TempDir()

	a, err := store.Put(context.Background(), stageFile(t, dir, "a", []byte("alpha")), Metadata{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Put(context.Background(), stageFile(t, dir, "b", []byte("bravo")), Metadata{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.Key == b.Key || a.IsDuplicate || b.IsDuplicate {
		t.Fatalf("unexpected objects %+v %+v", a, b)
	}
	if filepath.Dir(a.Key) != "clips" {
		t.Fatalf("expected clips prefix, got %q", a.Key)
	}
}

func TestPutConcurrentIdenticalContentSharesUpload(t *testing.T) {
	backend := newMemoryBackend()
	backend.gate = make(chan struct{})
	store := New(backend)
	dir := t.TempDir()
	content := []byte("concurrent payload")

	const callers = 5
	paths := make([]string, callers)
	for i := range paths {
		paths[i] = stageFile(t, dir, filepath.Base(t.Name())+string(rune('a'+i)), content)
	}

	var wg sync.WaitGroup
	results := make([]Object, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.Put(context.Background(), paths[i], Metadata{}, nil)
		}(i)
	}

	// Hold the upload open until it has started so the other callers can queue.
	deadline := time.After(5 * time.Second)
	for backend.uploads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("upload never started")
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	close(backend.gate)
	wg.Wait()

	fresh := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !results[i].IsDuplicate {
			fresh++
		}
	}
	if fresh != 1 {
		t.Fatalf("expected exactly one non-duplicate result, got %d", fresh)
	}
	if got := backend.uploads.Load(); got != 1 {
		t.Fatalf("expected 1 upload, got %d", got)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("staging file %s not removed", p)
		}
	}
}

func TestPutRemovesStagingFileOnUploadFailure(t *testing.T) {
	backend := newMemoryBackend()
	backend.uploadErr = errors.New("bucket unavailable")
	store := New(backend)
	path := stageFile(t, t.TempDir(), "clip.mp4", []byte("payload"))

	_, err := store.Put(context.Background(), path, Metadata{}, nil)
	if err == nil {
		t.Fatal("expected upload failure")
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != OpUpload {
		t.Fatalf("expected upload StoreError, got %v", err)
	}
	if !errors.Is(err, services.ErrUpload) || services.Code(err) != services.CodeUploadError {
		t.Fatalf("expected upload classification, got %v (%s)", err, services.Code(err))
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("staging file should be removed after failure")
	}
}

func TestPutLookupFailureIsStorageError(t *testing.T) {
	backend := newMemoryBackend()
	backend.lookupErr = errors.New("connection refused")
	store := New(backend)
	path := stageFile(t, t.TempDir(), "clip.mp4", []byte("payload"))

	_, err := store.Put(context.Background(), path, Metadata{}, nil)
	if services.Code(err) != services.CodeStorageError {
		t.Fatalf("expected STORAGE_ERROR, got %v", err)
	}
	if backend.uploads.Load() != 0 {
		t.Fatal("upload should not run after lookup failure")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("staging file should be removed after failure")
	}
}

func TestPutReportsUploadProgress(t *testing.T) {
	backend := newMemoryBackend()
	store := New(backend, WithProgressInterval(time.Hour))
	content := bytes.Repeat([]byte{1}, 64*1024)
	path := stageFile(t, t.TempDir(), "clip.mp4", content)

	var updates []Progress
	if _, err := store.Put(context.Background(), path, Metadata{}, func(p Progress) {
		updates = append(updates, p)
	}); err != nil {
		t.Fatal(err)
	}
	if len(updates) == 0 {
		t.Fatal("expected progress updates")
	}
	last := updates[len(updates)-1]
	if last.Percentage != 100 || last.Uploaded != int64(len(content)) {
		t.Fatalf("expected final 100%% update, got %+v", last)
	}
}

func TestPutMissingFile(t *testing.T) {
	store := New(newMemoryBackend())
	_, err := store.Put(context.Background(), filepath.Join(t.TempDir(), "missing"), Metadata{}, nil)
	var storeErr *StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != OpHash {
		t.Fatalf("expected hash StoreError, got %v", err)
	}
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{
		"video/webm":               ".webm",
		"video/mp4":                ".mp4",
		"application/octet-stream": ".mp4",
		"video/quicktime; x=y":     ".mov",
	}
	for in, want := range tests {
		if got := ExtensionFor(in); got != want {
			t.Errorf("ExtensionFor(%q) = %q, want %q", in, got, want)
		}
	}
}
