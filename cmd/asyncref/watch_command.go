package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"asyncref/internal/config"
	"asyncref/internal/drain"
	"asyncref/internal/logging"
	"asyncref/internal/queue"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var maxRuns int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Drain the queue at a fixed interval until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			if maxRuns < 0 {
				return fmt.Errorf("--max-runs must not be negative")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				worker, err := ctx.newWorker(cfg, store)
				if err != nil {
					return err
				}

				signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()

				logger := logging.NewComponentLogger(ctx.logger(), "watch")
				logger.Info("watch started", logging.Duration("interval", interval))

				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for runs := 1; ; runs++ {
					report, runErr := worker.Run(signalCtx)
					printWatchReport(cmd, report)
					if runErr != nil {
						logger.Warn("drain run failed; remaining items stay queued",
							logging.String(logging.FieldRunID, report.RunID),
							logging.Error(runErr),
						)
					}
					if maxRuns > 0 && runs >= maxRuns {
						return nil
					}
					select {
					case <-signalCtx.Done():
						logger.Info("watch stopped")
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Minute, "Time between drain runs")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "Stop after this many runs (0 runs until interrupted)")
	return cmd
}

func printWatchReport(cmd *cobra.Command, report drain.Report) {
	if report.Outcome == drain.OutcomeEmpty {
		return
	}
	out := cmd.OutOrStdout()
	stamp := report.Started.Format(time.RFC3339)
	label := titleLabel(string(report.Outcome))
	for _, line := range report.Lines() {
		fmt.Fprintf(out, "%s [%s] %s\n", stamp, label, line)
	}
}
