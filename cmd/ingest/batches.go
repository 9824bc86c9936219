package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

func newBatchesCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List committed import batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				batches, err := deps.Store.ListImportBatches(ctx, limit)
				if err != nil {
					return err
				}
				printBatches(cmd.OutOrStdout(), batches, deps.Config.Import.Currency)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of batches to show")
	return cmd
}

func printBatches(out io.Writer, batches []ledger.ImportBatch, currency string) {
	if len(batches) == 0 {
		fmt.Fprintln(out, "no import batches")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tIMPORTED\tFILE\tFORMAT\tROWS\tDEBITED\t")
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t\n",
			b.ID, b.CreatedAt.Local().Format("2006-01-02 15:04"), b.FileName, b.SourceFormat,
			b.TransactionCount, money.NewFromDecimal(b.TotalDebited, currency).Display())
	}
	tw.Flush()
}
