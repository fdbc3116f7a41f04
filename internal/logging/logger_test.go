package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"reelscope/internal/config"
	"reelscope/internal/services"
)

func TestPrettyHandlerFormatsSubjectAndFields(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, level, false))

	ctx := services.WithSubmissionID(context.Background(), "3f2a9c1d-0000-4000-8000-000000000000")
	ctx = services.WithStage(ctx, "downloading")
	WithContext(ctx, NewComponentLogger(logger, "pipeline")).Info("stage completed",
		Int64("bytes", 5242880),
		String("title", "two words"),
		Error(errors.New("none")),
	)

	line := buf.String()
	for _, fragment := range []string{"INFO", "pipeline: stage completed", "[3f2a9c1d downloading]", "bytes=5242880", `title="two words"`, "error=none"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "submission_id=") {
		t.Fatalf("submission id should render in subject, got %q", line)
	}
}

func TestPrettyHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	logger := slog.New(newPrettyHandler(&buf, level, false))
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
}

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Level = "debug"
	hub := NewStreamHub(16)

	logger, logPath, err := NewFromConfig(&cfg, hub)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("hello", String(FieldEventType, "test"))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &record); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", data, err)
	}
	if record["msg"] != "hello" || record["level"] != "info" {
		t.Fatalf("unexpected record %v", record)
	}
	if filepath.Base(logPath) != "reelscope.log" {
		t.Fatalf("unexpected log path %q", logPath)
	}
	if events, _ := hub.Tail(10); len(events) != 1 {
		t.Fatalf("expected exactly one streamed event, got %d", len(events))
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	hub := NewStreamHub(4)
	logger := slog.New(newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub))
	WarnWithContext(logger, "probe failed", "probe_failed")

	events, _ := hub.Tail(1)
	if len(events) != 1 {
		t.Fatalf("expected event")
	}
	fields := events[0].Fields
	if fields[FieldEventType] != "probe_failed" || fields[FieldErrorHint] == "" || fields[FieldImpact] == "" {
		t.Fatalf("expected injected fields, got %v", fields)
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	var emitted []float64
	for _, pct := range []float64{0, 3, 9, 10, 15, 22, 99, 100} {
		if s.ShouldLog("downloading", pct) {
			emitted = append(emitted, pct)
		}
	}
	want := []float64{0, 10, 22, 99, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	if !s.ShouldLog("uploading", 0) {
		t.Fatal("stage change should emit")
	}
}

func TestCleanupOldLogsRemovesExpired(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "reelscope-old.log")
	fresh := filepath.Join(dir, "reelscope-new.log")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	removed := CleanupOldLogs(NewNop(), 7, RetentionTarget{Dir: dir, Pattern: "reelscope-*.log"})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected old log removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("expected fresh log kept")
	}
}
