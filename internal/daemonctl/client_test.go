package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"reelscope/internal/analyzer"
	"reelscope/internal/api"
	"reelscope/internal/services"
	"reelscope/internal/submission"
)

func TestSubmitSendsTokenAndContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req api.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Input != "https://v.example/abc" || req.Context == nil || req.Context.Goal != "sell" {
			t.Errorf("unexpected request %+v", req)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{ID: "sub-1", StatusURL: api.SubmissionPath("sub-1")})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "tok")
	resp, err := client.Submit(context.Background(), "https://v.example/abc", &analyzer.Options{Goal: "sell"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.ID != "sub-1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAPIErrorsAreDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "busy", Code: services.CodeRateLimit})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Submit(context.Background(), "x", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Code != services.CodeRateLimit || apiErr.Message != "busy" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestUnreachableDaemon(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr, "").Status(context.Background(), false)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestFollowReconnectsWithLastEventID(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != api.EventsPath("sub-1") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", api.EventStreamType)
		switch calls.Add(1) {
		case 1:
			_ = api.WriteEvent(w, submission.Event{Seq: 1, Stage: submission.StageParsing})
			_ = api.WriteEvent(w, submission.Event{Seq: 2, Stage: submission.StageDownloading, Progress: 20})
		default:
			if got := r.Header.Get("Last-Event-ID"); got != "2" {
				t.Errorf("expected Last-Event-ID 2, got %q", got)
			}
			_ = api.WriteEvent(w, submission.Event{Seq: 2, Stage: submission.StageDownloading, Progress: 20})
			_ = api.WriteEvent(w, submission.Event{Seq: 3, Stage: submission.StageError, Error: "boom", ErrorCode: services.CodeNetworkError})
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var seen []uint64
	last, err := NewClient(srv.URL, "").Follow(ctx, "sub-1", func(evt submission.Event) {
		seen = append(seen, evt.Seq)
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if last.Stage != submission.StageError || last.ErrorCode != services.CodeNetworkError {
		t.Fatalf("unexpected terminal event %+v", last)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Fatalf("expected each event once, got %v", seen)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one reconnect, got %d calls", calls.Load())
	}
}

func TestFollowStopsOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "submission not found"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Follow(context.Background(), "gone", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected no retries on 404, got %d calls", calls.Load())
	}
}

func TestLogQueryEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("since") != "7" || q.Get("submission") != "sub-1" || q.Get("follow") != "1" || q.Has("tail") {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(api.LogStreamResponse{Next: 9})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "").Logs(context.Background(), LogQuery{Since: 7, SubmissionID: "sub-1", Follow: true})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if resp.Next != 9 {
		t.Fatalf("unexpected next %d", resp.Next)
	}
}

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	missing, err := ReadPID(filepath.Join(dir, "absent.pid"))
	if err != nil || missing != 0 {
		t.Fatalf("expected 0 for missing file, got %d %v", missing, err)
	}

	path := filepath.Join(dir, "reelscoped.pid")
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil || pid != 4242 {
		t.Fatalf("expected 4242, got %d %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected error for malformed pid")
	}
}

func TestProcessAlive(t *testing.T) {
	if !processAlive(os.Getpid()) {
		t.Fatal("expected current process to be alive")
	}
	if processAlive(0) {
		t.Fatal("pid 0 reported alive")
	}
}
