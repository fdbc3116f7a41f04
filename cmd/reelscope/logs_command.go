package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"reelscope/internal/daemonctl"
	"reelscope/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		follow     bool
		limit      int
		submission string
		component  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			query := daemonctl.LogQuery{
				Limit:        limit,
				Tail:         true,
				SubmissionID: strings.TrimSpace(submission),
				Component:    strings.TrimSpace(component),
			}
			out := cmd.OutOrStdout()
			for {
				resp, err := client.Logs(cmd.Context(), query)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					// Long polls that saw no events time out client-side.
					var netErr net.Error
					if follow && errors.As(err, &netErr) && netErr.Timeout() {
						continue
					}
					return wrapDaemonError(err)
				}
				for _, evt := range resp.Events {
					if jsonOutput {
						if err := writeJSON(cmd, evt); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintln(out, formatLogEvent(evt))
				}
				if !follow {
					return nil
				}
				query.Since = resp.Next
				query.Tail = false
				query.Follow = true
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().IntVarP(&limit, "lines", "n", 50, "Number of events to show")
	cmd.Flags().StringVar(&submission, "submission", "", "Only events for this submission id")
	cmd.Flags().StringVar(&component, "component", "", "Only events from this component")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print events as JSON lines")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(evt.Timestamp.Local().Format("15:04:05"))
	fmt.Fprintf(&b, " %-5s", strings.ToUpper(evt.Level))
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	if evt.SubmissionID != "" {
		fmt.Fprintf(&b, " (%s)", shortID(evt.SubmissionID))
	}
	b.WriteString(" ")
	b.WriteString(evt.Message)
	if len(evt.Fields) > 0 {
		for _, key := range slices.Sorted(maps.Keys(evt.Fields)) {
			fmt.Fprintf(&b, " %s=%s", key, evt.Fields[key])
		}
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
