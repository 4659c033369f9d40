package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"distill/internal/apply"
	"distill/internal/config"
	"distill/internal/storage"
)

func newLearningsCommand(ctx *commandContext) *cobra.Command {
	learningsCmd := &cobra.Command{
		Use:   "learnings",
		Short: "Inspect extracted learnings",
	}

	learningsCmd.AddCommand(newLearningsListCommand(ctx))
	learningsCmd.AddCommand(newSignaturesListCommand(ctx))

	return learningsCmd
}

func newLearningsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				learnings, err := apply.NewLearningStore(db).List(cmd.Context())
				if err != nil {
					return err
				}
				if len(learnings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No learnings recorded")
					return nil
				}
				rows := make([][]string, 0, len(learnings))
				for _, rec := range learnings {
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						rec.Type,
						rec.Scope,
						formatConfidence(rec.Confidence),
						strconv.Itoa(rec.EvidenceCount),
						truncateText(rec.Rule, 60),
					})
				}
				out := renderTable(
					[]string{"ID", "Type", "Scope", "Confidence", "Seen", "Rule"},
					rows,
					0, 3, 4,
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newSignaturesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "signatures",
		Short: "List recorded workflow signatures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withDB(func(cfg *config.Config, db *storage.DB) error {
				signatures, err := apply.NewSignatureStore(db).List(cmd.Context())
				if err != nil {
					return err
				}
				if len(signatures) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No workflow signatures recorded")
					return nil
				}
				rows := make([][]string, 0, len(signatures))
				for _, sig := range signatures {
					rows = append(rows, []string{
						strconv.FormatInt(sig.ID, 10),
						sig.Signature,
						formatConfidence(sig.Confidence),
						formatTimestamp(sig.CreatedAt),
					})
				}
				out := renderTable(
					[]string{"ID", "Signature", "Confidence", "Created"},
					rows,
					0, 2,
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}
