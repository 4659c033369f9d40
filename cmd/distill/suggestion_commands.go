package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"distill/internal/apply"
	"distill/internal/config"
	"distill/internal/storage"
)

func newSuggestionsCommand(ctx *commandContext) *cobra.Command {
	suggestionsCmd := &cobra.Command{
		Use:   "suggestions",
		Short: "Review and resolve analysis suggestions",
	}

	suggestionsCmd.AddCommand(newSuggestionsListCommand(ctx))
	suggestionsCmd.AddCommand(newSuggestionsApproveCommand(ctx))
	suggestionsCmd.AddCommand(newSuggestionsRejectCommand(ctx))

	return suggestionsCmd
}

func newSuggestionsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := parseSuggestionStatus(statusFlag)
			if err != nil {
				return err
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				suggestions, err := apply.NewSuggestionStore(db).List(cmd.Context(), status)
				if err != nil {
					return err
				}
				if len(suggestions) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No suggestions")
					return nil
				}
				rows := make([][]string, 0, len(suggestions))
				for _, s := range suggestions {
					rows = append(rows, []string{
						strconv.FormatInt(s.ID, 10),
						string(s.Type),
						s.TargetID,
						formatConfidence(s.Confidence),
						string(s.Status),
						formatTimestamp(s.CreatedAt),
					})
				}
				out := renderTable(
					[]string{"ID", "Type", "Target", "Confidence", "Status", "Created"},
					rows,
					0, 3,
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", string(apply.StatusPending), "Filter by status (pending, approved, rejected)")
	return cmd
}

func newSuggestionsApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a suggestion and apply its change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid suggestion id %q", args[0])
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				err := apply.NewSuggestionStore(db).ApplyAndApprove(cmd.Context(), id)
				if errors.Is(err, apply.ErrSuggestionResolved) {
					return fmt.Errorf("suggestion %d is already resolved", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved suggestion %d\n", id)
				return nil
			})
		},
	}
}

func newSuggestionsRejectCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a suggestion without applying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid suggestion id %q", args[0])
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				err := apply.NewSuggestionStore(db).Reject(cmd.Context(), id, reason)
				if errors.Is(err, apply.ErrSuggestionResolved) {
					return fmt.Errorf("suggestion %d is already resolved", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected suggestion %d\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason for rejecting the suggestion")
	return cmd
}

func parseSuggestionStatus(value string) (apply.SuggestionStatus, error) {
	switch apply.SuggestionStatus(value) {
	case apply.StatusPending, apply.StatusApproved, apply.StatusRejected:
		return apply.SuggestionStatus(value), nil
	default:
		return "", fmt.Errorf("unknown suggestion status %q", value)
	}
}
