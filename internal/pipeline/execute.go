package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"reelscope/internal/analyzer"
	"reelscope/internal/contentstore"
	"reelscope/internal/gate"
	"reelscope/internal/logging"
	"reelscope/internal/metrics"
	"reelscope/internal/resolver"
	"reelscope/internal/retriever"
	"reelscope/internal/services"
	"reelscope/internal/submission"
	"reelscope/internal/textutil"
)

// Percent checkpoints for each stage.
const (
	percentParsing     = 0
	percentParsed      = 25
	percentDownloading = 30
	percentUploading   = 60
	percentVideoReady  = 75
	percentAnalyzing   = 80
	percentCompleted   = 100
)

// downloadPercent maps download progress onto the 30-60 band.
func downloadPercent(pct int) int {
	return percentDownloading + int(math.Round(float64(clampPercent(pct))*0.3))
}

// uploadPercent maps upload progress onto the 60-75 band.
func uploadPercent(pct int) int {
	return percentUploading + int(math.Round(float64(clampPercent(pct))*0.15))
}

func clampPercent(pct int) int {
	return min(max(pct, 0), 100)
}

// emitter forwards events while keeping progress monotonic within a stage.
type emitter struct {
	emit     func(submission.Event)
	stage    submission.Stage
	progress int
}

func (e *emitter) send(evt submission.Event) {
	if evt.Stage == e.stage && evt.Progress < e.progress && !evt.Terminal() {
		return
	}
	if evt.Stage != e.stage {
		e.stage = evt.Stage
		e.progress = 0
	}
	e.progress = max(e.progress, evt.Progress)
	if e.emit != nil {
		e.emit(evt)
	}
}

// run is the state carried between stages of one submission.
type run struct {
	sub        submission.Submission
	opts       analyzer.Options
	out        *emitter
	logger     *slog.Logger
	resolution resolver.Resolution
	metadata   submission.Metadata
	staged     string
	object     contentstore.Object
}

// Execute runs sub to completion, calling emit for every event. It always
// finishes with exactly one terminal event, which it also returns.
func (o *Orchestrator) Execute(ctx context.Context, sub submission.Submission, opts analyzer.Options, emit func(submission.Event)) submission.Event {
	ctx = services.WithSubmissionID(ctx, sub.ID)
	r := &run{
		sub:  sub,
		opts: opts,
		out:  &emitter{emit: emit, stage: submission.StageIdle},
	}
	r.logger = logging.WithContext(ctx, o.logger)

	metrics.SubmissionsInFlight.Inc()
	defer metrics.SubmissionsInFlight.Dec()

	if err := validateInput(sub.RawInput); err != nil {
		return o.fail(r, submission.StageIdle, err)
	}

	steps := []struct {
		stage submission.Stage
		fn    func(context.Context, *run) error
	}{
		{submission.StageParsing, o.parse},
		{submission.StageDownloading, o.download},
		{submission.StageUploading, o.upload},
	}
	for _, step := range steps {
		stageCtx := services.WithStage(ctx, string(step.stage))
		started := time.Now()
		logging.WithContext(stageCtx, o.logger).Info("stage started",
			logging.String(logging.FieldEventType, "stage_start"),
		)
		if err := step.fn(stageCtx, r); err != nil {
			return o.fail(r, step.stage, err)
		}
		metrics.ObserveStage(string(step.stage), time.Since(started))
		logging.WithContext(stageCtx, o.logger).Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(started)),
		)
	}
	return o.finish(services.WithStage(ctx, string(submission.StageAnalyzing)), r)
}

func validateInput(raw string) error {
	switch {
	case strings.TrimSpace(raw) == "":
		return services.Wrap(services.ErrValidation, "", "", "input is empty", nil)
	case len(raw) > MaxInputBytes:
		return services.Wrap(services.ErrValidation, "", "", fmt.Sprintf("input exceeds %d bytes", MaxInputBytes), nil)
	}
	return nil
}

func (o *Orchestrator) parse(ctx context.Context, r *run) error {
	r.out.send(submission.Event{Stage: submission.StageParsing, Progress: percentParsing})
	resolution, err := o.deps.Resolver.Resolve(ctx, r.sub.RawInput)
	if err != nil {
		return err
	}
	r.resolution = resolution
	r.metadata = submission.Metadata{
		Title:           resolution.Metadata.Title,
		Author:          resolution.Metadata.Author,
		VideoID:         resolution.Metadata.VideoID,
		DurationSeconds: resolution.Metadata.DurationSeconds,
	}
	md := r.metadata
	r.out.send(submission.Event{
		Stage:         submission.StageParsing,
		Progress:      percentParsed,
		ParsedLocator: resolution.MediaLocator,
		Metadata:      &md,
	})
	return nil
}

func (o *Orchestrator) download(ctx context.Context, r *run) error {
	r.out.send(submission.Event{Stage: submission.StageDownloading, Progress: percentDownloading})
	locator := r.resolution.MediaLocator
	dest := filepath.Join(o.stagingDir, textutil.SanitizeToken(r.sub.ID)+retriever.Extension(locator))
	result, err := o.deps.Retriever.FetchWithRetry(ctx, locator, dest, o.policy, func(p retriever.Progress) {
		r.out.send(submission.Event{
			Stage:      submission.StageDownloading,
			Progress:   downloadPercent(p.Percentage),
			Downloaded: p.Downloaded,
			Total:      p.Total,
		})
	})
	if err != nil {
		return err
	}
	r.staged = result.Path
	metrics.AddBytes("download", result.SizeBytes)

	if o.deps.Prober == nil {
		return nil
	}
	measured, err := o.deps.Prober.Duration(ctx, result.Path)
	if err != nil {
		logging.WarnWithContext(r.logger, "duration probe failed; keeping resolver metadata", "duration_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "install ffprobe or check the staged file"),
			logging.String(logging.FieldImpact, "duration gate uses resolver metadata"),
		)
		return nil
	}
	if measured > 0 {
		r.metadata.DurationSeconds = measured
	}
	return nil
}

func (o *Orchestrator) upload(ctx context.Context, r *run) error {
	r.out.send(submission.Event{Stage: submission.StageUploading, Progress: percentUploading})
	object, err := o.deps.Store.Put(ctx, r.staged, contentstore.Metadata{
		Title:     r.metadata.Title,
		Author:    r.metadata.Author,
		VideoID:   r.metadata.VideoID,
		SourceURL: firstNonEmpty(r.resolution.ShareURL, r.resolution.MediaLocator),
	}, func(p contentstore.Progress) {
		r.out.send(submission.Event{
			Stage:      submission.StageUploading,
			Progress:   uploadPercent(p.Percentage),
			Downloaded: p.Uploaded,
			Total:      p.Total,
		})
	})
	if err != nil {
		return err
	}
	r.object = object
	metrics.RecordStore(object.IsDuplicate)
	if !object.IsDuplicate {
		metrics.AddBytes("upload", object.SizeBytes)
	}
	return nil
}

// finish emits video_ready, then either gates or analyzes, then completes.
func (o *Orchestrator) finish(ctx context.Context, r *run) submission.Event {
	info := r.videoInfo()
	ready := info
	r.out.send(submission.Event{Stage: submission.StageVideoReady, Progress: percentVideoReady, VideoInfo: &ready})
	r.logger.Info("video ready",
		logging.String(logging.FieldEventType, "video_ready"),
		logging.String("address", info.Address),
		logging.String("size", gate.FormatSize(info.SizeBytes)),
		logging.String("duration", gate.FormatDuration(info.DurationSeconds)),
		logging.Bool("duplicate", info.IsDuplicate),
	)

	var (
		result  submission.AnalysisResult
		warning string
	)
	if gate.ExceedsLimit(info.DurationSeconds, o.limitMinutes) {
		result = analyzer.Gated(info, info.DurationSeconds, o.limitMinutes)
		warning = gate.SkipWarning(info.DurationSeconds, o.limitMinutes)
		logging.WarnWithContext(r.logger, "analysis skipped; duration over limit", "analysis_gated",
			logging.String("duration", gate.FormatDuration(info.DurationSeconds)),
			logging.Int("limit_minutes", o.limitMinutes),
			logging.String(logging.FieldImpact, "no analysis for this video"),
		)
	} else {
		r.out.send(submission.Event{Stage: submission.StageAnalyzing, Progress: percentAnalyzing})
		started := time.Now()
		result = o.deps.Analyzer.Analyze(ctx, analyzer.Request{
			VideoInfo:       info,
			DurationSeconds: info.DurationSeconds,
			Options:         r.opts,
		})
		metrics.ObserveStage(string(submission.StageAnalyzing), time.Since(started))
		if result.Degraded() {
			warning = analyzer.WarningFor(result.DegradedReason)
			logging.WarnWithContext(r.logger, "analysis degraded; returning fallback result", "analysis_degraded",
				logging.Alert("degraded_analysis"),
				logging.String("degraded_reason", result.DegradedReason),
				logging.String(logging.FieldImpact, "recommendations are generic"),
			)
		}
	}
	metrics.RecordAnalysis(string(result.Variant), result.DegradedReason)
	metrics.RecordOutcome(outcomeLabel(result))

	final := submission.Event{
		Stage:    submission.StageCompleted,
		Progress: percentCompleted,
		Result:   &result,
		Warning:  warning,
	}
	r.out.send(final)
	r.logger.Info("submission completed",
		logging.String(logging.FieldEventType, "submission_complete"),
		logging.String("variant", string(result.Variant)),
		logging.String("degraded_reason", result.DegradedReason),
	)
	return final
}

func (o *Orchestrator) fail(r *run, stage submission.Stage, err error) submission.Event {
	code := services.Code(err)
	final := submission.Event{
		Stage:     submission.StageError,
		Progress:  r.out.progress,
		Error:     err.Error(),
		ErrorCode: code,
	}
	r.out.send(final)
	metrics.RecordFailure(string(stage), string(code))
	metrics.RecordOutcome("error")
	logging.ErrorWithContext(r.logger, "submission failed", "submission_failed",
		logging.String(logging.FieldStage, string(stage)),
		logging.String(logging.FieldErrorCode, string(code)),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hintFor(code)),
	)
	return final
}

func (r *run) videoInfo() submission.VideoInfo {
	id := r.metadata.VideoID
	if id == "" && len(r.object.Address) >= 12 {
		id = r.object.Address[:12]
	}
	title := r.metadata.Title
	if title == "" {
		title = "untitled"
	}
	return submission.VideoInfo{
		ID:              id,
		OriginalURL:     firstNonEmpty(r.resolution.ShareURL, r.sub.RawInput),
		Title:           title,
		Author:          r.metadata.Author,
		DurationSeconds: r.metadata.DurationSeconds,
		StoredAt:        r.object.StoredAt,
		Address:         r.object.Address,
		Key:             r.object.Key,
		PublicURL:       r.object.PublicURL,
		SizeBytes:       r.object.SizeBytes,
		IsDuplicate:     r.object.IsDuplicate,
	}
}

func outcomeLabel(result submission.AnalysisResult) string {
	switch {
	case result.DegradedReason == submission.DegradedGated:
		return "gated"
	case result.Degraded():
		return "degraded"
	default:
		return "completed"
	}
}

func hintFor(code services.ErrorCode) string {
	switch code {
	case services.CodeInvalidInput:
		return "submit a share link or text containing one"
	case services.CodeParseError:
		return "check the link is from a supported platform"
	case services.CodeDownloadError:
		return "the source may have expired the link; resubmit the share text"
	case services.CodeUploadError, services.CodeStorageError:
		return "check store configuration and reachability with reelscope check"
	default:
		return "check logs for details"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
