package workflow

import (
	"context"
	"errors"
	"time"

	"reelscope/internal/logging"
	"reelscope/internal/staging"
)

// Start enables submissions and launches the session sweeper and staging
// janitor. Pipelines started later run on a context derived from ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.startedAt = time.Now()
	m.loops.Add(2)
	m.mu.Unlock()

	go func() {
		defer m.loops.Done()
		m.sessions.Run(runCtx, m.sweepInterval)
	}()
	go m.runJanitor(runCtx)

	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Int("max_concurrent", cap(m.slots)),
		logging.Duration("sweep_interval", m.sweepInterval),
		logging.Duration("janitor_interval", m.janitorInterval),
	)
	return nil
}

// Stop refuses new submissions, cancels in-flight pipelines and waits for
// them to publish their terminal events. Pipelines still running after the
// shutdown grace period are abandoned.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.loops.Wait()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	grace := m.shutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logging.WarnWithContext(m.logger, "in-flight submissions did not finish before shutdown", "workflow_shutdown_timeout",
			logging.Duration("grace", grace),
			logging.String(logging.FieldErrorHint, "raise workflow.shutdown_grace_seconds"),
			logging.String(logging.FieldImpact, "abandoned submissions end without a terminal event"),
		)
		return
	}
	m.logger.Info("workflow stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

func (m *Manager) runJanitor(ctx context.Context) {
	defer m.loops.Done()
	if m.janitorInterval <= 0 || m.stagingDir == "" {
		return
	}
	ticker := time.NewTicker(m.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanStaging(ctx)
		}
	}
}

// CleanStaging removes staging entries older than the configured maximum age
// that do not belong to an in-flight submission.
func (m *Manager) CleanStaging(ctx context.Context) staging.CleanResult {
	result := staging.CleanStale(ctx, m.stagingDir, m.stagingMaxAge, m.activeTokens(), m.logger)
	m.mu.Lock()
	m.lastJanitor = result
	m.mu.Unlock()
	if len(result.Errors) > 0 {
		logging.WarnWithContext(m.logger, "staging cleanup incomplete", "staging_cleanup_failed",
			logging.Int("errors", len(result.Errors)),
			logging.String(logging.FieldErrorHint, "check permissions on paths.staging_dir"),
			logging.String(logging.FieldImpact, "abandoned downloads keep using disk space"),
		)
	}
	return result
}

func (m *Manager) activeTokens() map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tokens := make(map[string]struct{}, len(m.active))
	for token := range m.active {
		tokens[token] = struct{}{}
	}
	return tokens
}
