package workflow

import (
	"context"
	"errors"
	"strings"

	"reelscope/internal/analyzer"
	"reelscope/internal/logging"
	"reelscope/internal/metrics"
	"reelscope/internal/progress"
	"reelscope/internal/services"
	"reelscope/internal/submission"
	"reelscope/internal/textutil"
)

// ErrNotRunning is returned by Submit before Start or after Stop.
var ErrNotRunning = errors.New("workflow not running")

// Submit starts a pipeline for raw and returns its id and progress stream.
// The pipeline outlives the caller's context; it ends on its own terminal
// event or when the manager stops.
func (m *Manager) Submit(raw string, opts analyzer.Options) (string, *progress.Stream, error) {
	// Stop flips running under m.mu before waiting on inflight, so the
	// check and the Add must share the critical section.
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return "", nil, services.Wrap(services.ErrConfiguration, "", "submit", "", ErrNotRunning)
	}
	runCtx := m.runCtx
	m.inflight.Add(1)
	m.mu.Unlock()
	started := false
	defer func() {
		if !started {
			m.inflight.Done()
		}
	}()

	select {
	case m.slots <- struct{}{}:
	default:
		metrics.RecordRejected("capacity")
		m.logger.Info("submission refused",
			logging.String(logging.FieldEventType, "submission_rejected"),
			logging.String("reason", "capacity"),
			logging.Int("max_concurrent", cap(m.slots)),
		)
		return "", nil, services.Wrap(services.ErrRateLimited, "", "submit", "too many submissions in progress, try again shortly", nil)
	}

	sub := m.runner.NewSubmission(raw)
	if err := m.sessions.Create(submission.NewState(sub)); err != nil {
		<-m.slots
		return "", nil, services.Wrap(services.ErrConfiguration, "", "submit", "register session", err)
	}
	metrics.Sessions.Set(float64(m.sessions.Len()))
	stream := m.streams.Open(sub.ID)
	token := textutil.SanitizeToken(sub.ID)

	m.mu.Lock()
	m.active[token] = struct{}{}
	m.lastID = sub.ID
	m.mu.Unlock()

	started = true
	go m.execute(runCtx, sub, opts.Merge(m.defaults), stream, token)
	return sub.ID, stream, nil
}

func (m *Manager) execute(ctx context.Context, sub submission.Submission, opts analyzer.Options, stream *progress.Stream, token string) {
	defer m.inflight.Done()
	defer func() {
		m.mu.Lock()
		delete(m.active, token)
		m.mu.Unlock()
		<-m.slots
	}()

	ctx = services.WithSubmissionID(ctx, sub.ID)
	terminal := m.runner.Execute(ctx, sub, opts, func(evt submission.Event) {
		published, err := stream.Publish(evt)
		if err != nil {
			return
		}
		m.sessions.Apply(sub.ID, published)
	})
	// Runners report the terminal event by return; make sure watchers see it.
	if last, ok := stream.Last(); !ok || !last.Terminal() {
		if published, err := stream.Publish(terminal); err == nil {
			m.sessions.Apply(sub.ID, published)
		}
	}
	m.recordTerminal(terminal)
	// A shutdown cancels ctx; the terminal event is still reported.
	m.notify(context.WithoutCancel(ctx), sub.ID, terminal)
}

func (m *Manager) recordTerminal(evt submission.Event) {
	if evt.Stage != submission.StageError {
		return
	}
	m.mu.Lock()
	m.lastErr = strings.TrimSpace(evt.Error)
	m.mu.Unlock()
}
