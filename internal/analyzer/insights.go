package analyzer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reelscope/internal/gate"
	"reelscope/internal/submission"
)

// Genuine condenses a validated analysis into the client-facing result.
func Genuine(info submission.VideoInfo, analysis *Analysis) submission.AnalysisResult {
	raw, err := json.Marshal(analysis)
	if err != nil {
		raw = nil
	}
	hypotheses := make([]string, 0, len(analysis.ABTests))
	for _, test := range analysis.ABTests {
		if h := strings.TrimSpace(test.Hypothesis); h != "" {
			hypotheses = append(hypotheses, h)
		}
	}
	recommendations := make([]string, 0, len(analysis.Scorecard.PriorityFixes)+len(analysis.NextActions))
	recommendations = append(recommendations, compact(analysis.Scorecard.PriorityFixes)...)
	recommendations = append(recommendations, compact(analysis.NextActions)...)

	metrics := analysis.MetricsEstimated
	return submission.AnalysisResult{
		Variant:   submission.VariantGenuine,
		VideoInfo: info,
		Insights: submission.Insights{
			Hooks:             compact(analysis.Copywriting.HookType),
			VisualElements:    compact(analysis.Visual.FocusPoints),
			AudioAnalysis:     fmt.Sprintf("BPM: %s, cuts/min: %s", number(metrics.BPMEstimate), number(metrics.CutsPerMin)),
			Pacing:            fmt.Sprintf("avg shot length: %s s", number(metrics.AvgShotLenSec)),
			EngagementTactics: compact(analysis.EmotionValue.Triggers),
			ViralFactors:      hypotheses,
		},
		Recommendations: recommendations,
		Analysis:        raw,
	}
}

// Gated is the result for a video too long to analyze.
func Gated(info submission.VideoInfo, durationSeconds float64, limitMinutes int) submission.AnalysisResult {
	message := gate.SkipWarning(durationSeconds, limitMinutes)
	if limitMinutes <= 0 {
		limitMinutes = gate.DefaultLimitMinutes
	}
	return degraded(info, submission.DegradedGated, message, []string{
		fmt.Sprintf("Split the video into segments of at most %d minutes and submit each one.", limitMinutes),
		"Trim intros and outros so the core content fits the analysis window.",
	})
}

// Degraded is the explicit fallback used when analysis could not run.
func Degraded(info submission.VideoInfo, reason string) submission.AnalysisResult {
	return degraded(info, reason, WarningFor(reason), []string{
		"Resubmit the same link later; the stored copy is reused without another upload.",
	})
}

// WarningFor is the caller-facing explanation for a degraded reason.
func WarningFor(reason string) string {
	switch reason {
	case submission.DegradedGated:
		return "video exceeds the analysis duration limit; analysis skipped"
	case submission.DegradedUnconfigured:
		return "analysis backend is not configured; returning a placeholder result"
	case submission.DegradedCanceled:
		return "analysis was canceled; returning a placeholder result"
	default:
		return "analysis failed after retries; returning a placeholder result"
	}
}

func degraded(info submission.VideoInfo, reason, message string, recommendations []string) submission.AnalysisResult {
	return submission.AnalysisResult{
		Variant:   submission.VariantDegraded,
		VideoInfo: info,
		Insights: submission.Insights{
			Hooks:             []string{},
			VisualElements:    []string{},
			AudioAnalysis:     message,
			Pacing:            message,
			EngagementTactics: []string{},
			ViralFactors:      []string{},
		},
		Recommendations: recommendations,
		DegradedReason:  reason,
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
