package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"reelscope/internal/gate"
	"reelscope/internal/submission"
)

// progressPrinter renders progress events to stderr: a single rewritten line
// on a terminal, one line per stage change otherwise.
type progressPrinter struct {
	w         io.Writer
	tty       bool
	enabled   bool
	lastStage submission.Stage
	dirty     bool
}

func newProgressPrinter(cmd *cobra.Command, jsonOutput bool) *progressPrinter {
	w := cmd.ErrOrStderr()
	tty := isTerminal(w)
	return &progressPrinter{w: w, tty: tty, enabled: !jsonOutput || tty}
}

func (p *progressPrinter) onEvent(evt submission.Event) {
	if p == nil || !p.enabled {
		return
	}
	line := progressLine(evt)
	if p.tty {
		fmt.Fprintf(p.w, "\r\x1b[K%s", line)
		p.dirty = true
		if evt.Terminal() {
			p.finish()
		}
		return
	}
	if evt.Stage != p.lastStage || evt.Terminal() || evt.Warning != "" {
		fmt.Fprintln(p.w, line)
	}
	p.lastStage = evt.Stage
}

func (p *progressPrinter) finish() {
	if p == nil || !p.dirty {
		return
	}
	fmt.Fprintln(p.w)
	p.dirty = false
}

func progressLine(evt submission.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %3d%%", stageLabel(evt.Stage), evt.Progress)
	if evt.Total > 0 {
		fmt.Fprintf(&b, "  %s / %s", gate.FormatSize(evt.Downloaded), gate.FormatSize(evt.Total))
	} else if evt.Downloaded > 0 {
		fmt.Fprintf(&b, "  %s", gate.FormatSize(evt.Downloaded))
	}
	if evt.Metadata != nil && evt.Metadata.Title != "" {
		fmt.Fprintf(&b, "  %q", evt.Metadata.Title)
	}
	if evt.Warning != "" {
		fmt.Fprintf(&b, "  warning: %s", evt.Warning)
	}
	if evt.Error != "" {
		fmt.Fprintf(&b, "  [%s] %s", evt.ErrorCode, evt.Error)
	}
	return b.String()
}

// renderOutcome prints the terminal event of a submission.
func renderOutcome(w io.Writer, id string, evt submission.Event, colorize bool) {
	renderSectionHeader(w, "Submission "+id, colorize)
	fmt.Fprintln(w, renderStatusLine("Stage", stageKind(evt.Stage), stageLabel(evt.Stage), colorize))
	if evt.Stage == submission.StageError {
		fmt.Fprintln(w, renderStatusLine("Error", statusError, fmt.Sprintf("[%s] %s", evt.ErrorCode, evt.Error), colorize))
		return
	}
	if evt.Warning != "" {
		fmt.Fprintln(w, renderStatusLine("Warning", statusWarn, evt.Warning, colorize))
	}
	if evt.Result == nil {
		return
	}
	renderResult(w, evt.Result, colorize)
}

func renderResult(w io.Writer, result *submission.AnalysisResult, colorize bool) {
	info := result.VideoInfo
	if result.Degraded() {
		fmt.Fprintln(w, renderStatusLine("Analysis", statusWarn, "degraded ("+result.DegradedReason+")", colorize))
	} else {
		fmt.Fprintln(w, renderStatusLine("Analysis", statusOK, string(result.Variant), colorize))
	}
	rows := [][]string{
		{"Title", info.Title},
		{"Author", info.Author},
		{"Duration", gate.FormatDuration(info.DurationSeconds)},
		{"Size", gate.FormatSize(info.SizeBytes)},
		{"Address", info.Address},
		{"Public URL", info.PublicURL},
		{"Duplicate", yesNo(info.IsDuplicate)},
	}
	fmt.Fprint(w, renderTable([]string{"Video", ""}, rows))

	insights := result.Insights
	writeList(w, "Hooks", insights.Hooks)
	writeList(w, "Visual elements", insights.VisualElements)
	writeList(w, "Engagement tactics", insights.EngagementTactics)
	writeList(w, "Viral factors", insights.ViralFactors)
	if insights.Pacing != "" {
		fmt.Fprintf(w, "Pacing: %s\n", insights.Pacing)
	}
	if insights.AudioAnalysis != "" {
		fmt.Fprintf(w, "Audio: %s\n", insights.AudioAnalysis)
	}
	if len(result.Recommendations) > 0 {
		fmt.Fprintln(w, "Recommendations:")
		for i, rec := range result.Recommendations {
			fmt.Fprintf(w, "  %d. %s\n", i+1, rec)
		}
	}
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(w, "  - %s\n", item)
	}
}
