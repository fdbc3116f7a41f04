package retriever

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"reelscope/internal/services"
)

func testPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestFetchWritesFileAndEndsAtHundred(t *testing.T) {
	payload := bytes.Repeat([]byte("v"), 256*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Referer"); got != "https://www.douyin.com/" {
			t.Errorf("unexpected referer %q", got)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	r := New(nil, nil, WithProgressInterval(time.Hour))
	r.referer = "https://www.douyin.com/"
	dest := filepath.Join(t.TempDir(), "clip.mp4")

	var events []Progress
	result, err := r.Fetch(context.Background(), server.URL+"/clip.mp4", dest, func(p Progress) { events = append(events, p) })
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.SizeBytes != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), result.SizeBytes)
	}
	if len(events) == 0 || events[len(events)-1].Percentage != 100 {
		t.Fatalf("expected final 100%% event, got %+v", events)
	}
	// One throttled chunk update plus the guaranteed completion.
	if len(events) > 2 {
		t.Fatalf("expected throttled progress, got %d events", len(events))
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatal("partial file should be renamed")
	}
}

func TestFetchNon2xxIsDownloadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	r := New(nil, nil)
	_, err := r.Fetch(context.Background(), server.URL, filepath.Join(t.TempDir(), "x.mp4"), nil)
	var downloadErr *DownloadError
	if !errors.As(err, &downloadErr) || downloadErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected DownloadError with 403, got %v", err)
	}
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected ErrDownload marker, got %v", err)
	}
}

func TestFetchWithRetryExhaustsExactlyMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var retries atomic.Int32
	r := New(nil, nil, WithRetryObserver(func(int, error) { retries.Add(1) }))
	_, err := r.FetchWithRetry(context.Background(), server.URL, filepath.Join(t.TempDir(), "x.mp4"), testPolicy(3), nil)
	if err == nil {
		t.Fatal("expected failure after exhaustion")
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
	if got := retries.Load(); got != 2 {
		t.Fatalf("expected 2 retry notifications, got %d", got)
	}
	var downloadErr *DownloadError
	if !errors.As(err, &downloadErr) || downloadErr.Attempts != 3 {
		t.Fatalf("expected attempts recorded on error, got %v", err)
	}
}

func TestFetchWithRetryRecoversAndStaysMonotonic(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64*1024)
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		if n == 1 {
			// Sever the connection halfway through the body.
			_, _ = w.Write(payload[:len(payload)/2])
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				_ = conn.Close()
			}
			return
		}
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	r := New(nil, nil, WithProgressInterval(time.Nanosecond))
	dest := filepath.Join(t.TempDir(), "x.mp4")
	var events []Progress
	result, err := r.FetchWithRetry(context.Background(), server.URL, dest, testPolicy(3), func(p Progress) { events = append(events, p) })
	if err != nil {
		t.Fatalf("FetchWithRetry: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
	if result.SizeBytes != int64(len(payload)) {
		t.Fatalf("unexpected size %d", result.SizeBytes)
	}
	last := -1
	for _, evt := range events {
		if evt.Percentage < last {
			t.Fatalf("progress went backwards: %+v", events)
		}
		last = evt.Percentage
	}
	if last != 100 {
		t.Fatalf("expected to end at 100, got %d", last)
	}
}

func TestFetchWithRetryDoesNotRetryOversize(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	r := New(nil, nil, WithMaxBytes(1024))
	dest := filepath.Join(t.TempDir(), "x.mp4")
	_, err := r.FetchWithRetry(context.Background(), server.URL, dest, testPolicy(3), nil)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("oversize should not be retried, got %d calls", calls.Load())
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("no file should remain")
	}
}

func TestFetchWithRetryStopsOnCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(nil, nil)
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}
	dest := filepath.Join(t.TempDir(), "x.mp4")
	done := make(chan error, 1)
	go func() {
		_, err := r.FetchWithRetry(ctx, server.URL, dest, policy, nil)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error for canceled context")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("FetchWithRetry ignored cancellation")
	}
}

func TestNormalizeLocatorAndExtension(t *testing.T) {
	if got := NormalizeLocator("https://aweme.snssdk.com/aweme/v1/playwm/?video_id=1"); got != "https://aweme.snssdk.com/aweme/v1/play/?video_id=1" {
		t.Fatalf("unexpected normalized locator %q", got)
	}
	if got := Extension("https://cdn.example.com/a/b/clip.WEBM?sig=1"); got != ".webm" {
		t.Fatalf("expected .webm, got %q", got)
	}
	if got := Extension("https://cdn.example.com/stream?id=1"); got != ".mp4" {
		t.Fatalf("expected .mp4 default, got %q", got)
	}
}
