package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reelscope/internal/api"
	"reelscope/internal/daemonctl"
	"reelscope/internal/daemonrun"
	"reelscope/internal/deps"
	"reelscope/internal/gate"
	"reelscope/internal/submission"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopGrace    = 35 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background daemon",
	}

	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the reelscope daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), ctx.configValue(), exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: logLevel},
				daemonStartTimeout,
			)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the reelscope daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), daemonStopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	var jsonOutput bool
	var withChecks bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, submission and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context(), withChecks)
			if err != nil {
				if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
					return nil
				}
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd.OutOrStdout(), status, isTerminal(cmd.OutOrStdout()))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	statusCmd.Flags().BoolVar(&withChecks, "checks", false, "Also run preflight checks (contacts the store and analyzer)")

	daemonCmd.AddCommand(startCmd, stopCmd, statusCmd)
	return daemonCmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

func renderDaemonStatus(w io.Writer, status api.DaemonStatus, colorize bool) {
	renderSectionHeader(w, "Daemon", colorize)
	fmt.Fprintln(w, renderStatusLine("Running", boolKind(status.Running), fmt.Sprintf("%s (pid %d)", yesNo(status.Running), status.PID), colorize))
	fmt.Fprintln(w, renderStatusLine("API", statusInfo, status.APIAddress, colorize))
	fmt.Fprintln(w, renderStatusLine("Store", statusInfo, status.StoreBackend, colorize))
	analyzerKind := statusOK
	if status.Analyzer == "unconfigured" {
		analyzerKind = statusWarn
	}
	fmt.Fprintln(w, renderStatusLine("Analyzer", analyzerKind, status.Analyzer, colorize))
	if status.LogPath != "" {
		fmt.Fprintln(w, renderStatusLine("Log file", statusInfo, status.LogPath, colorize))
	}
	fmt.Fprintln(w)

	wf := status.Workflow
	renderSectionHeader(w, "Submissions", colorize)
	fmt.Fprintln(w, renderStatusLine("In flight", statusInfo, fmt.Sprintf("%d of %d", wf.InFlight, wf.MaxConcurrent), colorize))
	fmt.Fprintln(w, renderStatusLine("Sessions", statusInfo, strconv.Itoa(wf.Sessions), colorize))
	if wf.LastError != "" {
		fmt.Fprintln(w, renderStatusLine("Last error", statusError, wf.LastError, colorize))
	}
	if wf.LastJanitor.Removed > 0 || wf.LastJanitor.Errors > 0 {
		fmt.Fprintln(w, renderStatusLine("Staging cleanup", statusInfo,
			fmt.Sprintf("removed %d, freed %s, %d errors", wf.LastJanitor.Removed, gate.FormatSize(wf.LastJanitor.Freed), wf.LastJanitor.Errors), colorize))
	}
	if len(wf.StageCounts) > 0 {
		var rows [][]string
		for _, stage := range submission.AllStages() {
			if count := wf.StageCounts[stage]; count > 0 {
				rows = append(rows, []string{stageLabel(stage), strconv.Itoa(count)})
			}
		}
		fmt.Fprint(w, renderTable([]string{"Stage", "Count"}, rows, 1))
	}
	fmt.Fprintln(w)

	renderSectionHeader(w, "Dependencies", colorize)
	renderDependencies(w, status.Dependencies, colorize)

	if len(status.Checks) > 0 {
		fmt.Fprintln(w)
		renderSectionHeader(w, "Preflight", colorize)
		for _, check := range status.Checks {
			fmt.Fprintln(w, renderStatusLine(check.Name, boolKind(check.Passed), check.Detail, colorize))
		}
	}
}

func renderDependencies(w io.Writer, statuses []deps.Status, colorize bool) {
	for _, dep := range statuses {
		if dep.Available {
			fmt.Fprintln(w, renderStatusLine(dep.Name, statusOK, "Ready (command: "+dep.Command+")", colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
			detail += "; " + strings.ToLower(dep.Description) + " is skipped"
		}
		fmt.Fprintln(w, renderStatusLine(dep.Name, kind, detail, colorize))
	}
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}
