package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"asyncref/internal/config"
	"asyncref/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the reference index queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

type queueStatusJSON struct {
	Total  int            `json:"total"`
	Tables map[string]int `json:"tables"`
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending rows per table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				counts, err := store.CountByTable(cmd.Context())
				if err != nil {
					return err
				}
				total := 0
				for _, tc := range counts {
					total += tc.Count
				}

				if jsonOutput {
					payload := queueStatusJSON{Total: total, Tables: make(map[string]int, len(counts))}
					for _, tc := range counts {
						payload.Tables[tc.Table] = tc.Count
					}
					return writeJSON(cmd.OutOrStdout(), payload)
				}

				if total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(counts))
				for _, tc := range counts {
					rows = append(rows, []string{tc.Table, strconv.Itoa(tc.Count)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTableSpec(tableSpec{
					headers: []string{"Table", "Pending"},
					rows:    rows,
					aligns:  []columnAlignment{alignLeft, alignRight},
					footer:  []string{"Total", strconv.Itoa(total)},
				}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

type queueItemJSON struct {
	ID        int64  `json:"id"`
	Table     string `json:"table"`
	UID       int64  `json:"uid"`
	Workspace int64  `json:"workspace"`
	QueuedAt  string `json:"queued_at,omitempty"`
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued rows in processing order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				items, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}

				if jsonOutput {
					payload := make([]queueItemJSON, 0, len(items))
					for _, item := range items {
						payload = append(payload, queueItemJSON{
							ID:        item.ID,
							Table:     item.Key.Table,
							UID:       item.Key.UID,
							Workspace: item.Key.Workspace,
							QueuedAt:  formatQueuedAt(item.QueuedAt),
						})
					}
					return writeJSON(cmd.OutOrStdout(), payload)
				}

				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Key.Table,
						strconv.FormatInt(item.Key.UID, 10),
						strconv.FormatInt(item.Key.Workspace, 10),
						formatQueuedAt(item.QueuedAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Table", "UID", "Workspace", "Queued"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to show (0 shows all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every queued row without processing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d queued row(s)\n", removed)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue database schema and integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				var block statusBlock
				block.add("Database", boolStatus(health.DatabaseExists), health.DBPath)
				block.addf("Schema", boolStatus(health.TableExists && len(health.MissingColumns) == 0), "version %d", health.SchemaVersion)
				if len(health.MissingColumns) > 0 {
					block.addf("Columns", statusError, "missing %v", health.MissingColumns)
				}
				block.add("Integrity", boolStatus(health.IntegrityCheck), yesNo(health.IntegrityCheck))
				block.add("Pending", statusInfo, strconv.Itoa(health.TotalItems))
				if health.Error != "" {
					block.add("Error", statusError, health.Error)
				}
				block.write(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func boolStatus(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

func formatQueuedAt(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}
