package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"reelscope/internal/submission"
)

// ErrClosed is returned when publishing after the terminal event.
var ErrClosed = errors.New("progress stream closed")

// Stream is the ordered event log of one submission. Publishing never blocks;
// readers replay from any sequence number and then follow new events until
// the terminal event.
type Stream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	id      string
	events  []submission.Event
	nextSeq uint64
	closed  bool
	now     func() time.Time
}

// NewStream constructs an empty stream for submission id.
func NewStream(id string) *Stream {
	s := &Stream{id: id, now: time.Now}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// ID returns the submission identifier.
func (s *Stream) ID() string {
	return s.id
}

// Publish stamps evt with the next sequence number and appends it. Once a
// terminal event is published the stream is closed.
func (s *Stream) Publish(evt submission.Event) (submission.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return evt, ErrClosed
	}
	s.nextSeq++
	evt.Seq = s.nextSeq
	evt.SubmissionID = s.id
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.now().UTC()
	}
	s.events = append(s.events, evt)
	if evt.Terminal() {
		s.closed = true
	}
	s.cond.Broadcast()
	return evt, nil
}

// Last returns the most recent event.
func (s *Stream) Last() (submission.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return submission.Event{}, false
	}
	return s.events[len(s.events)-1], true
}

// Fetch returns events with sequence greater than since. When wait is true it
// blocks until there is at least one such event, the stream is closed, or ctx
// ends. done is true once the returned batch reaches the terminal event.
func (s *Stream) Fetch(ctx context.Context, since uint64, wait bool) (events []submission.Event, done bool, err error) {
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		// Sequence numbers are dense and start at 1, so since indexes directly.
		if since < uint64(len(s.events)) {
			events = append([]submission.Event(nil), s.events[since:]...)
			return events, s.closed, nil
		}
		if s.closed {
			return nil, true, nil
		}
		if !wait {
			return nil, false, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		s.cond.Wait()
	}
}

// Subscribe delivers every event after since on the returned channel, in
// order, and closes it after the terminal event or when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, since uint64) <-chan submission.Event {
	out := make(chan submission.Event, 16)
	go func() {
		defer close(out)
		cursor := since
		for {
			events, done, err := s.Fetch(ctx, cursor, true)
			if err != nil {
				return
			}
			for _, evt := range events {
				select {
				case out <- evt:
					cursor = evt.Seq
				case <-ctx.Done():
					return
				}
			}
			if done {
				return
			}
		}
	}()
	return out
}
