package retriever

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"reelscope/internal/config"
	"reelscope/internal/logging"
)

// Policy bounds FetchWithRetry. Attempt n (0-based) waits
// BaseDelay * Multiplier^n before the next try, capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// PolicyFromConfig builds the download retry policy from configuration.
func PolicyFromConfig(cfg *config.Config) Policy {
	if cfg == nil {
		return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	}
	return Policy{
		MaxAttempts: cfg.Retriever.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retriever.BaseDelayMillis) * time.Millisecond,
		MaxDelay:    time.Duration(cfg.Retriever.MaxDelayMillis) * time.Millisecond,
		Multiplier:  cfg.Retriever.BackoffMultiplier,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p Policy) build(onRetry func(failsafe.ExecutionEvent[Result])) retrypolicy.RetryPolicy[Result] {
	builder := retrypolicy.NewBuilder[Result]().
		WithMaxAttempts(p.MaxAttempts).
		HandleIf(func(_ Result, err error) bool { return retryable(err) }).
		ReturnLastFailure().
		OnRetry(onRetry)
	if p.BaseDelay > 0 {
		if p.Multiplier > 1 && p.MaxDelay > p.BaseDelay {
			builder = builder.WithBackoffFactor(p.BaseDelay, p.MaxDelay, p.Multiplier)
		} else {
			builder = builder.WithDelay(p.BaseDelay)
		}
	}
	return builder.Build()
}

// FetchWithRetry downloads locator into dest, retrying transient failures
// per policy. Progress never moves backwards even when an attempt restarts
// from zero bytes.
func (r *Retriever) FetchWithRetry(ctx context.Context, locator, dest string, policy Policy, onProgress ProgressFunc) (Result, error) {
	policy = policy.normalized()
	logger := logging.WithContext(ctx, r.logger)
	sampler := logging.NewProgressSampler(10)

	high := -1
	monotonic := func(p Progress) {
		if p.Percentage < high {
			return
		}
		high = p.Percentage
		if sampler.ShouldLog("downloading", float64(p.Percentage)) {
			logger.Debug("download progress",
				logging.Int("percent", p.Percentage),
				logging.Int64("downloaded_bytes", p.Downloaded),
				logging.Int64("total_bytes", p.Total),
			)
		}
		if onProgress != nil {
			onProgress(p)
		}
	}

	attempts := 0
	onRetry := func(e failsafe.ExecutionEvent[Result]) {
		logging.WarnWithContext(logger, "download attempt failed; retrying", "download_retry",
			logging.Int("attempt", e.Attempts()),
			logging.Int("max_attempts", policy.MaxAttempts),
			logging.Error(e.LastError()),
			logging.String(logging.FieldImpact, "download delayed"),
		)
		if r.onRetry != nil {
			r.onRetry(e.Attempts(), e.LastError())
		}
	}

	result, err := failsafe.With(policy.build(onRetry)).WithContext(ctx).Get(func() (Result, error) {
		attempts++
		return r.Fetch(ctx, locator, dest, monotonic)
	})
	if err != nil {
		var downloadErr *DownloadError
		if errors.As(err, &downloadErr) {
			downloadErr.Attempts = attempts
			return Result{}, downloadErr
		}
		return Result{}, &DownloadError{Locator: locator, Attempts: attempts, Err: err}
	}
	logger.Info("download complete",
		logging.String(logging.FieldEventType, "download_complete"),
		logging.Int64("size_bytes", result.SizeBytes),
		logging.Int("attempts", attempts),
	)
	return result, nil
}
