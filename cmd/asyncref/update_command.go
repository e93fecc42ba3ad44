package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"asyncref/internal/config"
	"asyncref/internal/drain"
	"asyncref/internal/queue"
	"asyncref/internal/refindex"
)

func newUpdateCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var check bool
	var silent bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Process queued reference index updates",
		Long: `Process every queued record, recomputing its reference index and removing
it from the queue. The run stops at the first failure; the failed record and
everything after it stay queued for the next run.

With --force the queue is bypassed and the whole reference index is rebuilt
directly. --check turns that rebuild into an analysis; without --force it is
ignored with a warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if check && !force {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: --check only applies with --force; processing the queue")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if force {
				return runForcedUpdate(cmd, ctx, cfg, check, silent)
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				worker, err := ctx.newWorker(cfg, store)
				if err != nil {
					return err
				}
				report, runErr := worker.Run(cmd.Context())
				printReport(cmd, report, silent)
				if runErr != nil {
					return &reportedError{err: runErr}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Bypass the queue and rebuild the whole reference index")
	cmd.Flags().BoolVar(&check, "check", false, "With --force, only report what would change")
	cmd.Flags().BoolVarP(&silent, "silent", "s", false, "Suppress all output except errors")
	return cmd
}

func printReport(cmd *cobra.Command, report drain.Report, silent bool) {
	lines := report.Lines()
	for i, line := range lines {
		if report.Outcome == drain.OutcomeFailed && i == len(lines)-1 {
			fmt.Fprintln(cmd.ErrOrStderr(), line)
			continue
		}
		if !silent {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}
}

func runForcedUpdate(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, check, silent bool) error {
	result, err := drain.Rebuild(cmd.Context(), drain.RebuildOptions{
		Indexer: ctx.indexerFactory(cfg),
		Capture: ctx.capture,
		Logger:  ctx.logger(),
	}, refindex.FullRequest{CheckOnly: check, Verbose: !silent})
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), drain.ErrorLine(err))
		return &reportedError{err: err}
	}
	if silent {
		return nil
	}
	out := cmd.OutOrStdout()
	if check {
		fmt.Fprintf(out, "Reference index check: %d to add, %d to delete, %d unchanged\n", result.Added, result.Deleted, result.Kept)
		return nil
	}
	fmt.Fprintf(out, "Reference index updated: %d added, %d deleted, %d kept\n", result.Added, result.Deleted, result.Kept)
	return nil
}
