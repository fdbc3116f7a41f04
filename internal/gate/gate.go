// Package gate holds the duration policy that decides whether a stored video
// is short enough to send for analysis.
package gate

import (
	"fmt"
	"math"
)

// DefaultLimitMinutes is the analysis ceiling used when none is configured.
const DefaultLimitMinutes = 5

// ExceedsLimit reports whether durationSeconds is strictly longer than
// limitMinutes. Unknown (zero or negative) durations never exceed the limit.
func ExceedsLimit(durationSeconds float64, limitMinutes int) bool {
	if durationSeconds <= 0 || math.IsNaN(durationSeconds) {
		return false
	}
	if limitMinutes <= 0 {
		limitMinutes = DefaultLimitMinutes
	}
	return durationSeconds > float64(limitMinutes*60)
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past one hour.
func FormatDuration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return "0:00"
	}
	total := int(math.Round(seconds))
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatSize renders a byte count with a binary unit suffix.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(bytes)
	idx := 0
	for value >= 1024 && idx < len(units)-1 {
		value /= 1024
		idx++
	}
	if idx == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.2f %s", value, units[idx])
}

// SkipWarning is the human-readable explanation attached to gated results.
func SkipWarning(durationSeconds float64, limitMinutes int) string {
	if limitMinutes <= 0 {
		limitMinutes = DefaultLimitMinutes
	}
	return fmt.Sprintf("video is %s long, over the %d-minute analysis limit; analysis skipped",
		FormatDuration(durationSeconds), limitMinutes)
}
