package ffprobe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestResultDuration(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "12.0"}, {CodecType: "video", Width: 1080, Height: 1920}},
		Format:  Format{Duration: "123.45"},
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if !result.HasVideo() {
		t.Fatal("expected video stream")
	}
	if w, h := result.Dimensions(); w != 1080 || h != 1920 {
		t.Fatalf("unexpected dimensions %dx%d", w, h)
	}
}

func TestResultDurationFallsBackToStreams(t *testing.T) {
	result := Result{
		Streams: []Stream{{Duration: "bad"}, {Duration: "42.5"}, {Duration: "40"}},
		Format:  Format{Duration: "N/A"},
	}
	if result.DurationSeconds() != 42.5 {
		t.Fatalf("expected stream fallback, got %v", result.DurationSeconds())
	}
	if (Result{}).DurationSeconds() != 0 {
		t.Fatal("empty result should report 0")
	}
}

func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestProberDuration(t *testing.T) {
	stub := writeStub(t, `echo '{"streams":[{"codec_type":"video"}],"format":{"duration":"401.2"}}'`+"\n")
	got, err := Prober{Binary: stub}.Duration(context.Background(), "/tmp/clip.mp4")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if got != 401.2 {
		t.Fatalf("expected 401.2, got %v", got)
	}
}

func TestProberFailure(t *testing.T) {
	stub := writeStub(t, "echo 'moov atom not found' >&2\nexit 1\n")
	if _, err := (Prober{Binary: stub}).Duration(context.Background(), "/tmp/clip.mp4"); err == nil {
		t.Fatal("expected error")
	}
	empty := writeStub(t, `echo '{"format":{}}'`+"\n")
	if _, err := (Prober{Binary: empty}).Duration(context.Background(), "/tmp/clip.mp4"); err == nil {
		t.Fatal("expected error for missing duration")
	}
}
