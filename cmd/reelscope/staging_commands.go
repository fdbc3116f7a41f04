package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reelscope/internal/gate"
	"reelscope/internal/logging"
	"reelscope/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean the download staging directory",
	}
	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))
	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staged downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := staging.List(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("list staging directory: %w", err)
			}
			if entries == nil {
				entries = []staging.Entry{}
			}
			var total int64
			for _, entry := range entries {
				total += entry.Size
			}
			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"staging_dir":      cfg.Paths.StagingDir,
					"entries":          entries,
					"total_size_bytes": total,
				})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No staged downloads")
				return nil
			}
			fmt.Fprintf(out, "Staging directory: %s\n\n", cfg.Paths.StagingDir)
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				age := time.Since(entry.ModTime).Truncate(time.Minute)
				rows = append(rows, []string{entry.Name, age.String(), gate.FormatSize(entry.Size)})
			}
			fmt.Fprint(out, renderTable([]string{"Name", "Age", "Size"}, rows, 1, 2))
			fmt.Fprintf(out, "\nTotal: %d entries, %s\n", len(entries), gate.FormatSize(total))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	return cmd
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove stale staged downloads",
		Long: `Remove staged downloads older than --max-age (workflow.staging_max_age_hours by default).

The running daemon also cleans the staging directory on its own schedule and
never removes files that belong to an in-flight submission.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			age := maxAge
			if age <= 0 {
				age = time.Duration(cfg.Workflow.StagingMaxAgeHours) * time.Hour
			}
			result := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, age, nil, logging.NewNop())
			out := cmd.OutOrStdout()
			for _, path := range result.Removed {
				fmt.Fprintf(out, "Removed %s\n", path)
			}
			for _, failure := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: %s: %v\n", failure.Path, failure.Error)
			}
			fmt.Fprintf(out, "Removed %d entries, freed %s\n", len(result.Removed), gate.FormatSize(result.Freed))
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d entries could not be removed", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Only remove entries older than this")
	return cmd
}
