package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"reelscope/internal/gate"
	"reelscope/internal/submission"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var follow bool

	cmd := &cobra.Command{
		Use:     "show <submission-id>",
		Aliases: []string{"status"},
		Short:   "Show the state of a submission",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			id := args[0]
			if follow {
				printer := newProgressPrinter(cmd, jsonOutput)
				evt, err := client.Follow(cmd.Context(), id, printer.onEvent)
				printer.finish()
				if err != nil {
					return wrapDaemonError(err)
				}
				if jsonOutput {
					return writeJSON(cmd, evt)
				}
				renderOutcome(cmd.OutOrStdout(), id, evt, isTerminal(cmd.OutOrStdout()))
				return nil
			}

			state, err := client.Get(cmd.Context(), id)
			if err != nil {
				return wrapDaemonError(err)
			}
			if jsonOutput {
				return writeJSON(cmd, state)
			}
			renderState(cmd.OutOrStdout(), state, isTerminal(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream progress until the submission finishes")
	return cmd
}

func renderState(w io.Writer, state submission.State, colorize bool) {
	renderSectionHeader(w, "Submission "+state.ID, colorize)
	fmt.Fprintln(w, renderStatusLine("Stage", stageKind(state.Stage), fmt.Sprintf("%s (%d%%)", stageLabel(state.Stage), state.ProgressPercent), colorize))
	fmt.Fprintln(w, renderStatusLine("Input", statusInfo, state.RawInput, colorize))
	fmt.Fprintln(w, renderStatusLine("Updated", statusInfo, state.UpdatedAt.Local().Format("2006-01-02 15:04:05"), colorize))
	if state.Metadata != nil && state.Metadata.Title != "" {
		meta := state.Metadata
		fmt.Fprintln(w, renderStatusLine("Video", statusInfo,
			fmt.Sprintf("%s by %s (%s)", meta.Title, meta.Author, gate.FormatDuration(meta.DurationSeconds)), colorize))
	}
	if state.StoredAddress != "" {
		fmt.Fprintln(w, renderStatusLine("Address", statusInfo, state.StoredAddress, colorize))
	}
	if state.Warning != "" {
		fmt.Fprintln(w, renderStatusLine("Warning", statusWarn, state.Warning, colorize))
	}
	if state.ErrorMessage != "" {
		fmt.Fprintln(w, renderStatusLine("Error", statusError, fmt.Sprintf("[%s] %s", state.ErrorCode, state.ErrorMessage), colorize))
	}
	if state.AnalysisResult != nil {
		renderResult(w, state.AnalysisResult, colorize)
	}
}
