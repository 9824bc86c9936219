package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
)

func newRecategorizeCommand(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "recategorize",
		Short: "Re-run categorization over the stored ledger",
		Long: `Recategorize re-evaluates stored transactions against the current keywords.
In "uncategorized" mode only rows without a category are considered; "all"
re-evaluates every row and clears categories that no longer match.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := categorization.ParseMode(mode)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				res, err := deps.Categories.RecategorizeTransactions(ctx, m)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), describeResult(res))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(categorization.ModeUncategorized), "uncategorized or all")
	return cmd
}
