package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"reelscope/internal/config"
	"reelscope/internal/gate"
	"reelscope/internal/logging"
	"reelscope/internal/services"
	"reelscope/internal/services/llm"
	"reelscope/internal/submission"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 2 * time.Second
)

// Backend produces a raw JSON analysis for a video URL.
type Backend interface {
	CompleteVideoJSON(ctx context.Context, prompt llm.VideoPrompt) (string, error)
}

// Request identifies the stored video to analyze.
type Request struct {
	VideoInfo       submission.VideoInfo
	DurationSeconds float64
	Options         Options
}

// Dispatcher sends stored videos to the analysis backend.
type Dispatcher struct {
	backend      Backend
	maxAttempts  int
	retryDelay   time.Duration
	limitMinutes int
	defaults     Options
	onRetry      func(attempt int, err error)
	logger       *slog.Logger
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithBackend replaces the configured backend.
func WithBackend(backend Backend) Option {
	return func(d *Dispatcher) {
		d.backend = backend
	}
}

// WithRetryDelay overrides the fixed delay between attempts.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		if delay >= 0 {
			d.retryDelay = delay
		}
	}
}

// WithRetryObserver registers a callback invoked before each retry.
func WithRetryObserver(fn func(attempt int, err error)) Option {
	return func(d *Dispatcher) {
		d.onRetry = fn
	}
}

// New builds a dispatcher. The LLM backend is only wired when an API key is
// configured; otherwise every analysis degrades.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		maxAttempts:  defaultMaxAttempts,
		retryDelay:   defaultRetryDelay,
		limitMinutes: gate.DefaultLimitMinutes,
		defaults:     DefaultOptions(cfg),
		logger:       logging.NewComponentLogger(logger, "analyzer"),
	}
	if cfg != nil {
		if cfg.Analyzer.MaxAttempts > 0 {
			d.maxAttempts = cfg.Analyzer.MaxAttempts
		}
		if cfg.Analyzer.RetryDelaySeconds >= 0 {
			d.retryDelay = time.Duration(cfg.Analyzer.RetryDelaySeconds) * time.Second
		}
		if cfg.Gate.LimitMinutes > 0 {
			d.limitMinutes = cfg.Gate.LimitMinutes
		}
		if strings.TrimSpace(cfg.Analyzer.APIKey) != "" {
			d.backend = llm.NewClient(llm.Config{
				APIKey:         cfg.Analyzer.APIKey,
				BaseURL:        cfg.Analyzer.BaseURL,
				Model:          cfg.Analyzer.Model,
				Referer:        cfg.Analyzer.Referer,
				Title:          cfg.Analyzer.Title,
				TimeoutSeconds: cfg.Analyzer.TimeoutSeconds,
			})
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Configured reports whether a backend is available.
func (d *Dispatcher) Configured() bool {
	return d != nil && d.backend != nil
}

// HealthCheck pings the backend when it supports it.
func (d *Dispatcher) HealthCheck(ctx context.Context) error {
	if !d.Configured() {
		return llm.ErrNotConfigured
	}
	if checker, ok := d.backend.(interface{ HealthCheck(context.Context) error }); ok {
		return checker.HealthCheck(ctx)
	}
	return nil
}

// Analyze runs the analysis for req. It never fails: rejection, exhaustion
// and cancellation all return the degraded variant with a reason.
func (d *Dispatcher) Analyze(ctx context.Context, req Request) submission.AnalysisResult {
	logger := logging.WithContext(ctx, d.logger)
	if gate.ExceedsLimit(req.DurationSeconds, d.limitMinutes) {
		logging.WarnWithContext(logger, "analysis rejected; duration over limit", "analysis_rejected",
			logging.String("duration", gate.FormatDuration(req.DurationSeconds)),
			logging.Int("limit_minutes", d.limitMinutes),
			logging.String(logging.FieldImpact, "degraded result returned"),
		)
		return Gated(req.VideoInfo, req.DurationSeconds, d.limitMinutes)
	}
	if !d.Configured() {
		logging.WarnWithContext(logger, "analysis backend not configured", "analysis_unconfigured",
			logging.String(logging.FieldErrorHint, "set analyzer.api_key or OPENROUTER_API_KEY"),
			logging.String(logging.FieldImpact, "degraded result returned"),
		)
		return Degraded(req.VideoInfo, submission.DegradedUnconfigured)
	}

	prompt := llm.VideoPrompt{
		System:   systemPrompt,
		User:     BuildPrompt(req.VideoInfo.PublicURL, req.DurationSeconds, req.Options.Merge(d.defaults)),
		VideoURL: req.VideoInfo.PublicURL,
	}

	policy := retrypolicy.NewBuilder[*Analysis]().
		WithMaxAttempts(d.maxAttempts).
		HandleIf(func(_ *Analysis, err error) bool { return retryable(ctx, err) }).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[*Analysis]) {
			logging.WarnWithContext(logger, "analysis attempt failed; retrying", "analysis_retry",
				logging.Int("attempt", e.Attempts()),
				logging.Int("max_attempts", d.maxAttempts),
				logging.Error(e.LastError()),
				logging.String(logging.FieldImpact, "analysis delayed"),
			)
			if d.onRetry != nil {
				d.onRetry(e.Attempts(), e.LastError())
			}
		})
	if d.retryDelay > 0 {
		policy = policy.WithDelay(d.retryDelay)
	}

	started := time.Now()
	analysis, err := failsafe.With(policy.Build()).WithContext(ctx).Get(func() (*Analysis, error) {
		return d.attempt(ctx, prompt)
	})
	if err != nil {
		reason := submission.DegradedExhausted
		if ctx.Err() != nil {
			reason = submission.DegradedCanceled
		}
		logging.WarnWithContext(logger, "analysis failed; returning degraded result", "analysis_degraded",
			logging.String("reason", reason),
			logging.Error(err),
			logging.String(logging.FieldErrorCode, string(services.CodeAnalysisError)),
			logging.String(logging.FieldImpact, "degraded result returned"),
		)
		return Degraded(req.VideoInfo, reason)
	}
	logger.Info("analysis complete",
		logging.String(logging.FieldEventType, "analysis_complete"),
		logging.String("language", analysis.LanguageDetected),
		logging.Float64("weighted_total", analysis.Scorecard.WeightedTotal),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Genuine(req.VideoInfo, analysis)
}

func (d *Dispatcher) attempt(ctx context.Context, prompt llm.VideoPrompt) (*Analysis, error) {
	content, err := d.backend.CompleteVideoJSON(ctx, prompt)
	if err != nil {
		return nil, services.Wrap(services.ErrAnalysis, "analyzing", "complete", "", err)
	}
	var analysis Analysis
	if err := llm.DecodeJSON(content, &analysis); err != nil {
		return nil, services.Wrap(services.ErrAnalysis, "analyzing", "decode", "", err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, err
	}
	if analysis.VideoURI == "" {
		analysis.VideoURI = prompt.VideoURL
	}
	return &analysis, nil
}

// retryable keeps retrying everything except cancellation and rejected
// credentials or requests.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, llm.ErrNotConfigured) {
		return false
	}
	var status *llm.StatusError
	if errors.As(err, &status) && !status.Temporary() {
		return false
	}
	return true
}
