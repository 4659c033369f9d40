package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"distill/internal/config"
	"distill/internal/queue"
	"distill/internal/storage"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the analysis queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				stats, err := queue.NewStore(db).Stats(cmd.Context())
				if err != nil {
					return err
				}
				if stats.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := [][]string{
					{stateLabel(string(queue.StateReady)), strconv.Itoa(stats.Ready)},
					{stateLabel(string(queue.StateClaimed)), strconv.Itoa(stats.Claimed)},
					{stateLabel(string(queue.StateResultPending)), strconv.Itoa(stats.ResultPending)},
					{stateLabel(string(queue.StateApplied)), strconv.Itoa(stats.Applied)},
					{stateLabel(string(queue.StateFailed)), strconv.Itoa(stats.Failed)},
					{"Total", strconv.Itoa(stats.Total)},
				}
				out := renderTable([]string{"State", "Count"}, rows, 1)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stateFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStates(stateFlags)
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				items, err := queue.NewStore(db).List(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					detail := ""
					if item.FailureReason != "" {
						detail = truncateText(item.FailureReason, 48)
					}
					rows = append(rows, []string{
						item.ID,
						item.ConversationID,
						string(item.Type),
						stateLabel(string(item.State())),
						formatTimestamp(item.CreatedAt),
						detail,
					})
				}
				out := renderTable(
					[]string{"ID", "Conversation", "Type", "State", "Created", "Detail"},
					rows,
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&stateFlags, "state", nil, "Filter by state (ready, claimed, result_pending, applied, failed)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed items back to ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				count, err := queue.NewStore(db).RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed item(s)\n", count)
				return nil
			})
		},
	}
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove old applied and failed items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				retentionDays := days
				if retentionDays <= 0 {
					retentionDays = cfg.Reaper.RetentionDays
				}
				retention := time.Duration(retentionDays) * 24 * time.Hour
				count, err := queue.NewStore(db).PurgeOlderThan(cmd.Context(), retention)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d terminal item(s) older than %d day(s)\n", count, retentionDays)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "older-than-days", 0, "Retention window in days (defaults to the configured value)")
	return cmd
}

func parseStates(values []string) ([]queue.State, error) {
	known := map[string]queue.State{
		string(queue.StateReady):         queue.StateReady,
		string(queue.StateClaimed):       queue.StateClaimed,
		string(queue.StateResultPending): queue.StateResultPending,
		string(queue.StateApplied):       queue.StateApplied,
		string(queue.StateFailed):        queue.StateFailed,
	}
	states := make([]queue.State, 0, len(values))
	for _, value := range values {
		state, ok := known[value]
		if !ok {
			return nil, fmt.Errorf("unknown state %q", value)
		}
		states = append(states, state)
	}
	return states, nil
}
