package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelscope/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("scrape returned %d", recorder.Code)
	}
	return recorder.Body.String()
}

func TestRecordersExposeSeries(t *testing.T) {
	metrics.RecordOutcome("gated")
	metrics.RecordFailure("downloading", "DOWNLOAD_ERROR")
	metrics.RecordRejected("rate_limit")
	metrics.RecordRetry("download")
	metrics.AddBytes("upload", 2048)
	metrics.AddBytes("download", 0)
	metrics.RecordStore(true)
	metrics.RecordAnalysis("degraded", "gated")
	metrics.ObserveStage("uploading", 1500*time.Millisecond)

	body := scrape(t)
	for _, want := range []string{
		`reelscope_submissions_total{outcome="gated"}`,
		`reelscope_stage_failures_total{code="DOWNLOAD_ERROR",stage="downloading"}`,
		`reelscope_submissions_rejected_total{reason="rate_limit"}`,
		`reelscope_retries_total{operation="download"}`,
		`reelscope_transferred_bytes_total{direction="upload"} 2048`,
		`reelscope_store_lookups_total{result="duplicate"}`,
		`reelscope_analysis_results_total{reason="gated",variant="degraded"}`,
		`reelscope_stage_duration_seconds_count{stage="uploading"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s in scrape output", want)
		}
	}
	if strings.Contains(body, `direction="download"`) {
		t.Error("zero-byte transfers should not create a series")
	}
}
