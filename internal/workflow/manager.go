package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reelscope/internal/analyzer"
	"reelscope/internal/config"
	"reelscope/internal/logging"
	"reelscope/internal/metrics"
	"reelscope/internal/notifications"
	"reelscope/internal/progress"
	"reelscope/internal/session"
	"reelscope/internal/staging"
	"reelscope/internal/submission"
)

// Runner executes one submission through the pipeline. It is satisfied by
// *pipeline.Orchestrator.
type Runner interface {
	NewSubmission(raw string) submission.Submission
	Execute(ctx context.Context, sub submission.Submission, opts analyzer.Options, emit func(submission.Event)) submission.Event
}

// Manager coordinates in-flight submissions, their sessions and streams.
type Manager struct {
	runner   Runner
	notifier notifications.Service
	logger   *slog.Logger
	defaults analyzer.Options

	sessions *session.Table
	streams  *progress.Hub
	slots    chan struct{}

	stagingDir      string
	stagingMaxAge   time.Duration
	janitorInterval time.Duration
	sweepInterval   time.Duration
	shutdownGrace   time.Duration

	mu          sync.RWMutex
	running     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	loops       sync.WaitGroup
	inflight    sync.WaitGroup
	active      map[string]struct{}
	lastErr     string
	lastID      string
	startedAt   time.Time
	lastJanitor staging.CleanResult
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	notifier notifications.Service
	clock    func() time.Time
}

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(o *managerOptions) {
		o.notifier = notifier
	}
}

// WithClock overrides the session table clock (used in tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(o *managerOptions) {
		o.clock = now
	}
}

// NewManager constructs a submission manager around runner.
func NewManager(cfg *config.Config, runner Runner, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	options := &managerOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.notifier == nil {
		options.notifier = notifications.NewService(cfg)
	}

	logger = logging.NewComponentLogger(logger, "workflow")
	m := &Manager{
		runner:          runner,
		notifier:        options.notifier,
		logger:          logger,
		defaults:        analyzer.DefaultOptions(cfg),
		streams:         progress.NewHub(),
		slots:           make(chan struct{}, max(cfg.Workflow.MaxConcurrent, 1)),
		stagingDir:      cfg.Paths.StagingDir,
		stagingMaxAge:   time.Duration(cfg.Workflow.StagingMaxAgeHours) * time.Hour,
		janitorInterval: time.Duration(cfg.Workflow.JanitorIntervalMins) * time.Minute,
		sweepInterval:   cfg.SessionSweepInterval(),
		shutdownGrace:   time.Duration(cfg.Workflow.ShutdownGraceSeconds) * time.Second,
		active:          make(map[string]struct{}),
	}

	tableOpts := []session.Option{
		session.WithLogger(logger),
		session.WithEvictHook(m.onEvict),
	}
	if options.clock != nil {
		tableOpts = append(tableOpts, session.WithClock(options.clock))
	}
	m.sessions = session.NewTable(cfg.SessionTTL(), tableOpts...)
	return m
}

// Get returns the last-known state of a submission.
func (m *Manager) Get(id string) (submission.State, bool) {
	return m.sessions.Get(id)
}

// Stream returns the progress stream of a submission still in the table.
func (m *Manager) Stream(id string) (*progress.Stream, bool) {
	return m.streams.Get(id)
}

// Sweep evicts idle sessions immediately and returns their ids.
func (m *Manager) Sweep() []string {
	return m.sessions.Sweep()
}

func (m *Manager) onEvict(id string) {
	m.streams.Remove(id)
	metrics.Sessions.Set(float64(m.sessions.Len()))
}
