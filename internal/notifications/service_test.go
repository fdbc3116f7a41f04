package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"reelscope/internal/config"
	"reelscope/internal/notifications"
	"reelscope/internal/submission"
)

type captured struct {
	title    string
	tags     string
	priority string
	click    string
	body     string
}

func ntfyServer(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			click:    r.Header.Get("Click"),
			body:     string(body),
		})
		mu.Unlock()
	}))
	t.Cleanup(server.Close)
	return server, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyError(context.Background(), "id", "PARSE_ERROR", "no link"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
	if err := notifications.NewService(nil).TestNotification(context.Background()); err != nil {
		t.Fatalf("nil config should be a noop, got %v", err)
	}
}

func TestNotifyCompletedGenuine(t *testing.T) {
	server, seen := ntfyServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	result := submission.AnalysisResult{
		Variant:         submission.VariantGenuine,
		VideoInfo:       submission.VideoInfo{Title: "Latte art", PublicURL: "https://media.example/videos/a.mp4", IsDuplicate: true},
		Recommendations: []string{"Open on the pour"},
	}
	if err := svc.NotifyCompleted(context.Background(), result, ""); err != nil {
		t.Fatalf("NotifyCompleted: %v", err)
	}
	got := seen()
	if len(got) != 1 {
		t.Fatalf("expected one notification, got %d", len(got))
	}
	if got[0].title != "reelscope - Complete" || got[0].tags != "reelscope,completed,duplicate" {
		t.Fatalf("unexpected headers %+v", got[0])
	}
	if !strings.Contains(got[0].body, "Latte art") || !strings.Contains(got[0].body, "Open on the pour") {
		t.Fatalf("unexpected body %q", got[0].body)
	}
	if got[0].click != "https://media.example/videos/a.mp4" {
		t.Fatalf("expected click-through to the stored video, got %q", got[0].click)
	}
}

func TestNotifyGatedRespectsToggle(t *testing.T) {
	server, seen := ntfyServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Gated = false
	svc := notifications.NewService(&cfg)

	gated := submission.AnalysisResult{Variant: submission.VariantDegraded, DegradedReason: submission.DegradedGated}
	if err := svc.NotifyCompleted(context.Background(), gated, "too long"); err != nil {
		t.Fatalf("NotifyCompleted: %v", err)
	}
	if len(seen()) != 0 {
		t.Fatal("gated notifications are disabled")
	}

	cfg.Notifications.Gated = true
	svc = notifications.NewService(&cfg)
	_ = svc.NotifyCompleted(context.Background(), gated, "video is 6:40 long")
	got := seen()
	if len(got) != 1 || got[0].title != "reelscope - Analysis Skipped" || !strings.Contains(got[0].body, "6:40") {
		t.Fatalf("unexpected gated notification %+v", got)
	}
}

func TestNotifyErrorIsHighPriority(t *testing.T) {
	server, seen := ntfyServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)

	if err := svc.NotifyError(context.Background(), "sub-1", "DOWNLOAD_ERROR", "status 403"); err != nil {
		t.Fatalf("NotifyError: %v", err)
	}
	got := seen()
	if len(got) != 1 || got[0].priority != "high" {
		t.Fatalf("expected high priority error, got %+v", got)
	}
	if got[0].body != "Submission failed [DOWNLOAD_ERROR]: status 403\nID: sub-1" {
		t.Fatalf("unexpected body %q", got[0].body)
	}
}

func TestSendSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}
