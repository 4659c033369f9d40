package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"distill/internal/config"
	"distill/internal/conversations"
	"distill/internal/queue"
	"distill/internal/storage"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var typeFlag string

	cmd := &cobra.Command{
		Use:   "analyze <conversation-id>",
		Short: "Queue a conversation for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := queue.ParseAnalysisType(typeFlag)
			if !ok {
				return fmt.Errorf("unknown analysis type %q", typeFlag)
			}
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				conversationID := args[0]
				conv, err := conversations.NewStore(db).GetByID(cmd.Context(), conversationID)
				if err != nil {
					return err
				}
				if conv == nil {
					return fmt.Errorf("conversation %q not found", conversationID)
				}
				item, err := queue.NewStore(db).Enqueue(cmd.Context(), conversationID, kind, cfg.Analysis.Backend, cfg.Analysis.Version)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s analysis %s for conversation %s\n", kind, item.ID, conversationID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&typeFlag, "type", "t", string(queue.TypeSummary), "Analysis type (workflow, learning, summary, dedupe)")
	return cmd
}
