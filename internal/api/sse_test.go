package api

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"reelscope/internal/submission"
)

func TestEventReaderRoundTripsFrames(t *testing.T) {
	var buf bytes.Buffer
	events := []submission.Event{
		{Seq: 1, Stage: submission.StageParsing},
		{Seq: 2, Stage: submission.StageDownloading, Progress: 42, Downloaded: 420, Total: 1000},
		{Seq: 3, Stage: submission.StageError, Error: "status 403", ErrorCode: "DOWNLOAD_ERROR"},
	}
	for i, evt := range events {
		if err := WriteEvent(&buf, evt); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
		if i == 0 {
			_ = WriteComment(&buf, "ping")
		}
	}
	if !strings.Contains(buf.String(), "id: 2\nevent: downloading\n") {
		t.Fatalf("unexpected framing:\n%s", buf.String())
	}

	reader := NewEventReader(&buf)
	for _, want := range events {
		got, err := reader.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got.Seq != want.Seq || got.Stage != want.Stage || got.Progress != want.Progress || got.ErrorCode != want.ErrorCode {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}
	if reader.LastID() != 3 {
		t.Fatalf("expected last id 3, got %d", reader.LastID())
	}
	if _, err := reader.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestEventReaderJoinsMultilineData(t *testing.T) {
	stream := "id: 7\ndata: {\"seq\":7,\ndata: \"stage\":\"completed\",\"progress\":100}\n\n"
	evt, err := NewEventReader(strings.NewReader(stream)).Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if evt.Seq != 7 || evt.Stage != submission.StageCompleted || evt.Progress != 100 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestEventReaderRejectsBadJSON(t *testing.T) {
	_, err := NewEventReader(strings.NewReader("data: {nope\n\n")).Next()
	if err == nil {
		t.Fatal("expected decode error")
	}
}
