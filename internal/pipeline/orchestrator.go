package pipeline

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"reelscope/internal/analyzer"
	"reelscope/internal/config"
	"reelscope/internal/contentstore"
	"reelscope/internal/gate"
	"reelscope/internal/logging"
	"reelscope/internal/media/ffprobe"
	"reelscope/internal/metrics"
	"reelscope/internal/progress"
	"reelscope/internal/resolver"
	"reelscope/internal/retriever"
	"reelscope/internal/submission"
)

// MaxInputBytes bounds the raw share text accepted for a submission.
const MaxInputBytes = 4096

// Resolver turns share text into a fetchable locator.
type Resolver interface {
	Resolve(ctx context.Context, raw string) (resolver.Resolution, error)
}

// Retriever downloads a locator into the staging directory.
type Retriever interface {
	FetchWithRetry(ctx context.Context, locator, dest string, policy retriever.Policy, onProgress retriever.ProgressFunc) (retriever.Result, error)
}

// Store persists staged bytes under their content address.
type Store interface {
	Put(ctx context.Context, localPath string, meta contentstore.Metadata, onProgress contentstore.ProgressFunc) (contentstore.Object, error)
}

// Analyzer produces the analysis result for a stored video.
type Analyzer interface {
	Analyze(ctx context.Context, req analyzer.Request) submission.AnalysisResult
}

// DurationProber measures the real duration of a staged file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Dependencies are the stage collaborators.
type Dependencies struct {
	Resolver  Resolver
	Retriever Retriever
	Store     Store
	Analyzer  Analyzer
	Prober    DurationProber
}

// Orchestrator drives one submission through the fixed stage sequence.
type Orchestrator struct {
	deps         Dependencies
	policy       retriever.Policy
	stagingDir   string
	limitMinutes int
	logger       *slog.Logger
	now          func() time.Time
}

// New constructs an orchestrator. A nil Prober disables duration probing.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		deps:         deps,
		policy:       retriever.PolicyFromConfig(cfg),
		stagingDir:   os.TempDir(),
		limitMinutes: gate.DefaultLimitMinutes,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		now:          time.Now,
	}
	if cfg != nil {
		if strings.TrimSpace(cfg.Paths.StagingDir) != "" {
			o.stagingDir = cfg.Paths.StagingDir
		}
		if cfg.Gate.LimitMinutes > 0 {
			o.limitMinutes = cfg.Gate.LimitMinutes
		}
	}
	return o
}

// NewFromConfig wires the production collaborators.
func NewFromConfig(cfg *config.Config, store *contentstore.Store, logger *slog.Logger) *Orchestrator {
	var prober DurationProber
	if cfg != nil {
		prober = ffprobe.Prober{Binary: cfg.FFprobeBinary(), Timeout: 30 * time.Second}
	}
	return New(cfg, Dependencies{
		Resolver:  resolver.New(cfg, logger),
		Retriever: retriever.New(cfg, logger, retriever.WithRetryObserver(countRetry("download"))),
		Store:     store,
		Analyzer:  analyzer.New(cfg, logger, analyzer.WithRetryObserver(countRetry("analysis"))),
		Prober:    prober,
	}, logger)
}

func countRetry(operation string) func(int, error) {
	return func(int, error) { metrics.RecordRetry(operation) }
}

// NewSubmission stamps a fresh submission for raw.
func (o *Orchestrator) NewSubmission(raw string) submission.Submission {
	now := o.now().UTC()
	return submission.Submission{
		ID:        uuid.NewString(),
		RawInput:  raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Run starts a submission in the background and returns its id and event
// stream. The stream ends with exactly one terminal event.
func (o *Orchestrator) Run(ctx context.Context, raw string, opts analyzer.Options) (string, *progress.Stream) {
	sub := o.NewSubmission(raw)
	stream := progress.NewStream(sub.ID)
	go o.Execute(ctx, sub, opts, func(evt submission.Event) {
		_, _ = stream.Publish(evt)
	})
	return sub.ID, stream
}
