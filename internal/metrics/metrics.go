// Package metrics exposes Prometheus instrumentation for the submission
// pipeline. Labels stay low-cardinality: no submission ids or URLs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts finished submissions by outcome.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelscope_submissions_total",
		Help: "Finished submissions, by outcome (completed, gated, degraded, error).",
	}, []string{"outcome"})

	// SubmissionsRejectedTotal counts submissions refused before the pipeline started.
	SubmissionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelscope_submissions_rejected_total",
		Help: "Submissions refused before running, by reason.",
	}, []string{"reason"})

	// SubmissionsInFlight tracks running pipelines.
	SubmissionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelscope_submissions_in_flight",
		Help: "Pipelines currently running.",
	})

	// StageDuration observes wall time spent per stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelscope_stage_duration_seconds",
		Help:    "Time spent in each pipeline stage.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
	}, []string{"stage"})

	// StageFailuresTotal counts terminal failures by stage and error code.
	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelscope_stage_failures_total",
		Help: "Terminal pipeline failures, by stage and error code.",
	}, []string{"stage", "code"})

	// RetriesTotal counts retried attempts by operation.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelscope_retries_total",
		Help: "Retried attempts, by operation (download, analysis).",
	}, []string{"operation"})

	// TransferredBytesTotal counts bytes moved by direction.
	TransferredBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelscope_transferred_bytes_total",
		Help: "Bytes downloaded from sources and uploaded to the store.",
	}, []string{"direction"})

	// StoreLookupsTotal counts content-address lookups by result.
	StoreLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelscope_store_lookups_total",
		Help: "Stored-object results, by result (uploaded, duplicate).",
	}, []string{"result"})

	// AnalysisResultsTotal counts analysis outcomes by variant and reason.
	AnalysisResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelscope_analysis_results_total",
		Help: "Analysis results, by variant and degraded reason.",
	}, []string{"variant", "reason"})

	// Sessions tracks entries in the session table.
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelscope_sessions",
		Help: "Submissions currently held in the session table.",
	})
)

// ObserveStage records how long a stage took.
func ObserveStage(stage string, elapsed time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RecordOutcome counts a finished submission.
func RecordOutcome(outcome string) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordFailure counts a terminal failure.
func RecordFailure(stage, code string) {
	StageFailuresTotal.WithLabelValues(stage, code).Inc()
}

// RecordRejected counts a refused submission.
func RecordRejected(reason string) {
	SubmissionsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordRetry counts a retried attempt.
func RecordRetry(operation string) {
	RetriesTotal.WithLabelValues(operation).Inc()
}

// AddBytes adds transferred bytes for direction "download" or "upload".
func AddBytes(direction string, n int64) {
	if n > 0 {
		TransferredBytesTotal.WithLabelValues(direction).Add(float64(n))
	}
}

// RecordStore counts a stored object as uploaded or duplicate.
func RecordStore(duplicate bool) {
	result := "uploaded"
	if duplicate {
		result = "duplicate"
	}
	StoreLookupsTotal.WithLabelValues(result).Inc()
}

// RecordAnalysis counts an analysis result.
func RecordAnalysis(variant, reason string) {
	AnalysisResultsTotal.WithLabelValues(variant, reason).Inc()
}
