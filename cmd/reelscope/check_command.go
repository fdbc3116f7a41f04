package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reelscope/internal/contentstore"
	"reelscope/internal/logging"
	"reelscope/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against the local configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var results []preflight.Result
			store, storeErr := contentstore.NewFromConfig(cmd.Context(), cfg, logging.NewNop())
			if storeErr != nil {
				results = preflight.RunAll(cmd.Context(), cfg, nil)
			} else {
				defer store.Close()
				results = preflight.RunAll(cmd.Context(), cfg, store)
			}
			dependencies := preflight.CheckSystemDeps(cfg)

			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"checks":       results,
					"dependencies": dependencies,
				})
			}

			out := cmd.OutOrStdout()
			colorize := isTerminal(out)
			renderSectionHeader(out, "Preflight", colorize)
			if storeErr != nil {
				fmt.Fprintln(out, renderStatusLine("Open content store", statusError, storeErr.Error(), colorize))
			}
			for _, result := range results {
				fmt.Fprintln(out, renderStatusLine(result.Name, boolKind(result.Passed), result.Detail, colorize))
			}
			fmt.Fprintln(out)
			renderSectionHeader(out, "Dependencies", colorize)
			renderDependencies(out, dependencies, colorize)

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight checks failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON")
	return cmd
}
