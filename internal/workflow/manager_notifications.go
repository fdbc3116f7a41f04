package workflow

import (
	"context"
	"errors"
	"time"

	"reelscope/internal/logging"
	"reelscope/internal/submission"
)

const notifyTimeout = 30 * time.Second

func (m *Manager) notify(ctx context.Context, id string, terminal submission.Event) {
	if m.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	var err error
	switch terminal.Stage {
	case submission.StageCompleted:
		if terminal.Result == nil {
			return
		}
		err = m.notifier.NotifyCompleted(ctx, *terminal.Result, terminal.Warning)
	case submission.StageError:
		err = m.notifier.NotifyError(ctx, id, string(terminal.ErrorCode), terminal.Error)
	default:
		return
	}
	if err == nil {
		return
	}
	logger := logging.WithContext(ctx, m.logger)
	if errors.Is(err, context.Canceled) {
		logger.Debug("daemon shutting down, could not send notification")
		return
	}
	logger.Debug("notification failed", logging.Error(err))
}
