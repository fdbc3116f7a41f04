package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"reelscope/internal/analyzer"
	"reelscope/internal/config"
	"reelscope/internal/contentstore"
	"reelscope/internal/daemonctl"
	"reelscope/internal/logging"
	"reelscope/internal/pipeline"
	"reelscope/internal/submission"
)

type submitFlags struct {
	jsonOutput bool
	local      bool
	detach     bool
	options    analyzer.Options
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var flags submitFlags

	cmd := &cobra.Command{
		Use:   "submit <share-text-or-url>...",
		Short: "Ingest and analyze short videos",
		Long: "Submit one or more share links (or pasted share text) for download, storage and analysis.\n" +
			"By default the running daemon handles the work; --local runs the pipeline in this process.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var opts *analyzer.Options
			if flags.options != (analyzer.Options{}) {
				opts = &flags.options
			}

			var run func(context.Context, string) (string, submission.Event, error)
			if flags.local {
				local, closeFn, err := newLocalRunner(cmd.Context(), cfg, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer closeFn()
				run = func(runCtx context.Context, input string) (string, submission.Event, error) {
					return local(runCtx, input, opts, newProgressPrinter(cmd, flags.jsonOutput))
				}
			} else {
				client, err := ctx.client()
				if err != nil {
					return err
				}
				if flags.detach {
					return submitDetached(cmd, client, args, opts, flags.jsonOutput)
				}
				run = func(runCtx context.Context, input string) (string, submission.Event, error) {
					printer := newProgressPrinter(cmd, flags.jsonOutput)
					id, evt, err := client.SubmitFollow(runCtx, input, opts, printer.onEvent)
					printer.finish()
					return id, evt, wrapDaemonError(err)
				}
			}

			var failed int
			for _, input := range args {
				id, evt, err := run(cmd.Context(), input)
				if err != nil {
					return err
				}
				if flags.jsonOutput {
					if err := writeJSON(cmd, evt); err != nil {
						return err
					}
				} else {
					renderOutcome(cmd.OutOrStdout(), id, evt, isTerminal(cmd.OutOrStdout()))
				}
				if evt.Stage == submission.StageError {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d submissions failed", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the terminal event as JSON")
	cmd.Flags().BoolVar(&flags.local, "local", false, "Run the pipeline in-process instead of through the daemon")
	cmd.Flags().BoolVar(&flags.detach, "detach", false, "Return after the daemon accepts the submission")
	cmd.Flags().StringVar(&flags.options.AccountNiche, "niche", "", "Account niche")
	cmd.Flags().StringVar(&flags.options.Goal, "goal", "", "Business goal")
	cmd.Flags().StringVar(&flags.options.TargetPersona, "persona", "", "Target persona")
	cmd.Flags().StringVar(&flags.options.ProductInfo, "product", "", "Product or offer details")
	cmd.Flags().StringVar(&flags.options.BrandTone, "tone", "", "Brand tone")
	cmd.Flags().StringVar(&flags.options.ComplianceNotes, "compliance", "", "Compliance constraints")
	cmd.Flags().StringVar(&flags.options.TranscriptText, "transcript", "", "Known transcript text")
	cmd.Flags().StringVar(&flags.options.CommentsSample, "comments", "", "Sample of viewer comments")
	cmd.Flags().StringVar(&flags.options.PostMeta, "post-meta", "", "Post metadata such as caption or hashtags")
	return cmd
}

func submitDetached(cmd *cobra.Command, client *daemonctl.Client, inputs []string, opts *analyzer.Options, jsonOutput bool) error {
	for _, input := range inputs {
		resp, err := client.Submit(cmd.Context(), input, opts)
		if err != nil {
			return wrapDaemonError(err)
		}
		if jsonOutput {
			if err := writeJSON(cmd, resp); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Accepted %s (follow with `reelscope show %s --follow`)\n", resp.ID, resp.ID)
	}
	return nil
}

type localRunFunc func(ctx context.Context, input string, opts *analyzer.Options, printer *progressPrinter) (string, submission.Event, error)

// newLocalRunner wires the pipeline in-process. Logs go to stderr at warn
// level so they do not interleave with progress output.
func newLocalRunner(ctx context.Context, cfg *config.Config, stderr io.Writer) (localRunFunc, func(), error) {
	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	store, err := contentstore.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open content store: %w", err)
	}
	orchestrator := pipeline.NewFromConfig(cfg, store, logger)
	defaults := analyzer.DefaultOptions(cfg)

	run := func(runCtx context.Context, input string, opts *analyzer.Options, printer *progressPrinter) (string, submission.Event, error) {
		merged := defaults
		if opts != nil {
			merged = opts.Merge(defaults)
		}
		id, stream := orchestrator.Run(runCtx, strings.TrimSpace(input), merged)
		defer printer.finish()
		for evt := range stream.Subscribe(runCtx, 0) {
			printer.onEvent(evt)
			if evt.Terminal() {
				return id, evt, nil
			}
		}
		if err := runCtx.Err(); err != nil {
			return id, submission.Event{}, err
		}
		return id, submission.Event{}, errors.New("pipeline ended without a terminal event")
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(stderr, "warn: close content store: %v\n", err)
		}
	}
	return run, closeFn, nil
}
