package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"reelscope/internal/submission"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishAssignsDenseSequence(t *testing.T) {
	s := NewStream("sub-1")
	for i, stage := range []submission.Stage{submission.StageParsing, submission.StageDownloading, submission.StageCompleted} {
		evt, err := s.Publish(submission.Event{Stage: stage})
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if evt.Seq != uint64(i+1) || evt.SubmissionID != "sub-1" || evt.Timestamp.IsZero() {
			t.Fatalf("unexpected stamped event %+v", evt)
		}
	}
	if _, err := s.Publish(submission.Event{Stage: submission.StageError}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after terminal, got %v", err)
	}
	last, ok := s.Last()
	if !ok || last.Stage != submission.StageCompleted {
		t.Fatalf("expected completed as last event, got %+v", last)
	}
}

func TestFetchReplaysFromSequence(t *testing.T) {
	s := NewStream("sub-1")
	for _, p := range []int{0, 25} {
		if _, err := s.Publish(submission.Event{Stage: submission.StageParsing, Progress: p}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	events, done, err := s.Fetch(context.Background(), 1, false)
	if err != nil || done {
		t.Fatalf("unexpected fetch result done=%v err=%v", done, err)
	}
	if len(events) != 1 || events[0].Seq != 2 || events[0].Progress != 25 {
		t.Fatalf("expected replay of seq 2, got %+v", events)
	}
	events, _, _ = s.Fetch(context.Background(), 2, false)
	if len(events) != 0 {
		t.Fatalf("expected nothing after latest seq, got %+v", events)
	}
}

func TestFetchWaitUnblocksOnContext(t *testing.T) {
	s := NewStream("sub-1")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := s.Fetch(ctx, 0, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestSubscribeFollowsUntilTerminal(t *testing.T) {
	s := NewStream("sub-1")
	if _, err := s.Publish(submission.Event{Stage: submission.StageParsing}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ch := s.Subscribe(context.Background(), 0)

	go func() {
		_, _ = s.Publish(submission.Event{Stage: submission.StageDownloading, Progress: 30})
		_, _ = s.Publish(submission.Event{Stage: submission.StageError, Error: "boom"})
	}()

	var got []submission.Event
	for evt := range ch {
		got = append(got, evt)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %+v", got)
	}
	for i, evt := range got {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("events out of order: %+v", got)
		}
	}
	if !got[2].Terminal() || got[2].Error != "boom" {
		t.Fatalf("expected terminal error last, got %+v", got[2])
	}
}

func TestSubscribeAfterCloseDrainsAndEnds(t *testing.T) {
	s := NewStream("sub-1")
	_, _ = s.Publish(submission.Event{Stage: submission.StageParsing})
	_, _ = s.Publish(submission.Event{Stage: submission.StageCompleted, Progress: 100})

	var count int
	for range s.Subscribe(context.Background(), 1) {
		count++
	}
	if count != 1 {
		t.Fatalf("expected only the terminal event after seq 1, got %d", count)
	}
}

func TestSubscribeStopsOnCancel(t *testing.T) {
	s := NewStream("sub-1")
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, 0)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close without events")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop after cancel")
	}
}

func TestHubOpenGetRemove(t *testing.T) {
	h := NewHub()
	a := h.Open("a")
	if h.Open("a") != a {
		t.Fatal("Open should return the existing stream")
	}
	if got, ok := h.Get("a"); !ok || got != a {
		t.Fatal("Get should find the stream")
	}
	h.Remove("a")
	if _, ok := h.Get("a"); ok || h.Len() != 0 {
		t.Fatal("stream should be removed")
	}
}
