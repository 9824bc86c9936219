package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/internal/domain/balance"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

func newSummaryCommand(a *app) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show money in and out per category over a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := period(from, to, time.Now())
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				sum, err := balance.NewService(deps.Store).Summarize(ctx, start, end)
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), sum, deps.Config.Import.Currency)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD (default: first day of this month)")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD (default: today)")
	return cmd
}

// period resolves the --from/--to flags against now.
func period(from, to string, now time.Time) (time.Time, time.Time, error) {
	y, m, d := now.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	var err error
	if from != "" {
		if start, err = time.Parse(ledger.DateLayout, from); err != nil {
			return start, end, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if to != "" {
		if end, err = time.Parse(ledger.DateLayout, to); err != nil {
			return start, end, fmt.Errorf("invalid --to: %w", err)
		}
	}
	return start, end, nil
}

func printSummary(out io.Writer, sum *balance.Summary, currency string) {
	fmt.Fprintf(out, "%s to %s: %d transactions\n",
		sum.Start.Format(ledger.DateLayout), sum.End.Format(ledger.DateLayout), sum.Transactions)
	fmt.Fprintf(out, "out %s, in %s, net %s, average daily spend %s\n\n",
		money.NewFromDecimal(sum.TotalOut, currency).Display(),
		money.NewFromDecimal(sum.TotalIn, currency).Display(),
		money.NewFromDecimal(sum.Net(), currency).Display(),
		money.NewFromDecimal(sum.AverageDailyOut, currency).Display(),
	)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "CATEGORY\tCOUNT\tOUT\tIN\t")
	for _, c := range sum.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", c.Name, c.Count,
			money.NewFromDecimal(c.Out, currency).Display(),
			money.NewFromDecimal(c.In, currency).Display())
	}
	tw.Flush()
}
