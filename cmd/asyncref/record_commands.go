package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"asyncref/internal/buffer"
	"asyncref/internal/capture"
	"asyncref/internal/config"
	"asyncref/internal/hook"
	"asyncref/internal/queue"
	"asyncref/internal/refindex"
	"asyncref/internal/tablepolicy"
)

type recordOptions struct {
	workspace int64
	direct    bool
}

// recordOutcome is what a record command reports after its buffer flushed.
type recordOutcome struct {
	flushed  buffer.Result
	excluded bool
}

func newRecordCommand(ctx *commandContext) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Report record changes from the host system",
	}

	recordCmd.AddCommand(newRecordUpdatedCommand(ctx))
	recordCmd.AddCommand(newRecordIndexCommand(ctx))

	return recordCmd
}

func newRecordUpdatedCommand(ctx *commandContext) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "updated <table> <uid>...",
		Short: "Queue records whose references changed",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := strings.TrimSpace(args[0])
			uids := make([]int64, 0, len(args)-1)
			for _, raw := range args[1:] {
				uid, err := parseUID(raw)
				if err != nil {
					return err
				}
				uids = append(uids, uid)
			}

			outcome, err := ctx.withInterceptor(cmd.Context(), table, opts, hook.ConsumerRecordUpdates, func(runCtx context.Context, interceptor *hook.Interceptor) error {
				for _, uid := range uids {
					if err := interceptor.RecordUpdated(runCtx, table, uid); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case outcome.excluded:
				fmt.Fprintf(out, "Table %s is excluded from reference indexing\n", table)
			case opts.direct:
				fmt.Fprintf(out, "Recomputed reference index for %d record(s)\n", len(uids))
			default:
				fmt.Fprintf(out, "Queued %d record(s) (%d already queued)\n", outcome.flushed.Inserted, outcome.flushed.Skipped)
			}
			return nil
		},
	}

	addRecordFlags(cmd, &opts)
	return cmd
}

func newRecordIndexCommand(ctx *commandContext) *cobra.Command {
	var opts recordOptions
	var check bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index <table> <uid>",
		Short: "Request a reference index update for one record",
		Long: `Request a reference index update for one record. The request is queued
unless --direct is set. --check always runs immediately and only reports what
would change.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := strings.TrimSpace(args[0])
			uid, err := parseUID(args[1])
			if err != nil {
				return err
			}

			var result refindex.Result
			outcome, err := ctx.withInterceptor(cmd.Context(), table, opts, hook.ConsumerReferenceIndex, func(runCtx context.Context, interceptor *hook.Interceptor) error {
				var err error
				result, err = interceptor.UpdateRecordIndex(runCtx, table, uid, check)
				return err
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			out := cmd.OutOrStdout()
			if outcome.excluded {
				fmt.Fprintf(out, "Table %s is excluded from reference indexing\n", table)
				return nil
			}
			if outcome.flushed.Buffered > 0 {
				fmt.Fprintf(out, "Queued %s:%d for reference indexing\n", table, uid)
				return nil
			}
			fmt.Fprintf(out, "added=%d deleted=%d kept=%d\n", result.Added, result.Deleted, result.Kept)
			for _, ref := range result.References {
				fmt.Fprintf(out, "  %s\n", ref)
			}
			return nil
		},
	}

	addRecordFlags(cmd, &opts)
	cmd.Flags().BoolVar(&check, "check", false, "Analyse only; never queue or persist")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the recompute statistics as JSON")
	return cmd
}

func addRecordFlags(cmd *cobra.Command, opts *recordOptions) {
	cmd.Flags().Int64VarP(&opts.workspace, "workspace", "w", 0, "Active workspace of the editing user (0 = live)")
	cmd.Flags().BoolVar(&opts.direct, "direct", false, "Recompute immediately instead of queueing")
}

// withInterceptor runs fn against a fresh buffer and capture toggle, flushing
// the buffer before returning.
func (c *commandContext) withInterceptor(parent context.Context, table string, opts recordOptions, consumer capture.Consumer, fn func(context.Context, *hook.Interceptor) error) (recordOutcome, error) {
	var outcome recordOutcome
	if opts.workspace < 0 {
		return outcome, fmt.Errorf("--workspace must not be negative")
	}
	err := c.withStore(func(cfg *config.Config, store *queue.Store) error {
		policy := tablepolicy.FromConfig(cfg)
		outcome.excluded = policy.Excluded(table)
		buf := buffer.New(store, policy, cfg.Queue.InsertBatchSize, buffer.WithLogger(c.logger()))
		toggle := capture.New()
		if opts.direct {
			toggle.Set(consumer, false)
		}
		interceptor := hook.New(policy, toggle, buf, c.indexerFactory(cfg), c.logger())

		runCtx := parent
		if opts.workspace > 0 {
			runCtx = tablepolicy.WithActiveWorkspace(runCtx, opts.workspace)
		}
		var err error
		outcome.flushed, err = buffer.Scope(runCtx, buf, func(scopeCtx context.Context) error {
			return fn(scopeCtx, interceptor)
		})
		return err
	})
	return outcome, err
}
