package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newLockCommand(ctx *commandContext) *cobra.Command {
	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect or clear the drain run lock",
	}

	lockCmd.AddCommand(newLockStatusCommand(ctx))
	lockCmd.AddCommand(newLockClearCommand(ctx))

	return lockCmd
}

type lockStatusJSON struct {
	Path  string `json:"path"`
	Held  bool   `json:"held"`
	Since string `json:"since,omitempty"`
}

func newLockStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a drain run holds the lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := ctx.runLock(cfg).Stat()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				payload := lockStatusJSON{Path: status.Path, Held: status.Held}
				if status.Held {
					payload.Since = status.Since.UTC().Format(time.RFC3339)
				}
				return writeJSON(out, payload)
			}

			var block statusBlock
			if !status.Held {
				block.add("Run lock", statusOK, "free")
			} else {
				age := time.Since(status.Since).Round(time.Second)
				block.addf("Run lock", statusWarn, "held for %s (since %s)", age, status.Since.Local().Format("2006-01-02 15:04:05"))
			}
			block.add("Marker", statusInfo, status.Path)
			block.write(out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newLockClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove a run lock left behind by a crashed drain",
		Long: `Remove the run lock marker. Only do this when no drain is running: a
crashed or killed run leaves the marker behind and every later run skips
until it is cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock := ctx.runLock(cfg)
			held, err := lock.Held()
			if err != nil {
				return err
			}
			if !held {
				fmt.Fprintf(cmd.OutOrStdout(), "No run lock at %s\n", lock.Path())
				return nil
			}
			if err := lock.Release(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed run lock %s\n", lock.Path())
			return nil
		},
	}
}
