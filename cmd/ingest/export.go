package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger/repository"
)

// exportRow is one line of the CSV export.
type exportRow struct {
	Date        string `csv:"date"`
	Description string `csv:"description"`
	AmountOut   string `csv:"amount_out"`
	AmountIn    string `csv:"amount_in"`
	Category    string `csv:"category"`
	Format      string `csv:"source_format"`
	BatchID     string `csv:"import_batch_id"`
}

type exportFlags struct {
	from, to      string
	category      string
	uncategorized bool
	batch         string
	limit         int
	output        string
}

func newExportCommand(a *app) *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export ledger transactions as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := f.filter()
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				categories, err := deps.Categories.ListCategories(ctx)
				if err != nil {
					return err
				}
				if f.category != "" {
					cat, err := deps.Categories.ResolveByName(ctx, f.category)
					if err != nil {
						return err
					}
					filter.CategoryID = &cat.ID
				}
				txns, err := deps.Store.ListTransactions(ctx, filter)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if f.output != "" && f.output != "-" {
					file, err := os.Create(f.output)
					if err != nil {
						return fmt.Errorf("failed to create export file: %w", err)
					}
					defer file.Close()
					out = file
				}
				return writeExport(out, txns, categories)
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.from, "from", "", "first date, YYYY-MM-DD")
	fl.StringVar(&f.to, "to", "", "last date, YYYY-MM-DD")
	fl.StringVar(&f.category, "category", "", "only this category")
	fl.BoolVar(&f.uncategorized, "uncategorized", false, "only transactions without a category")
	fl.StringVar(&f.batch, "batch", "", "only this import batch")
	fl.IntVar(&f.limit, "limit", 0, "maximum rows, 0 for all")
	fl.StringVarP(&f.output, "output", "o", "-", "output file, - for stdout")
	cmd.MarkFlagsMutuallyExclusive("category", "uncategorized")
	return cmd
}

func (f exportFlags) filter() (repository.TransactionFilter, error) {
	filter := repository.TransactionFilter{Uncategorized: f.uncategorized, Limit: f.limit}
	var err error
	if f.from != "" {
		if filter.Start, err = time.Parse(ledger.DateLayout, f.from); err != nil {
			return filter, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if f.to != "" {
		if filter.End, err = time.Parse(ledger.DateLayout, f.to); err != nil {
			return filter, fmt.Errorf("invalid --to: %w", err)
		}
	}
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		return filter, fmt.Errorf("--to %s is before --from %s", f.to, f.from)
	}
	if f.batch != "" {
		id, err := uuid.Parse(f.batch)
		if err != nil {
			return filter, fmt.Errorf("invalid --batch: %w", err)
		}
		filter.BatchID = &id
	}
	return filter, nil
}

func writeExport(out io.Writer, txns []ledger.Transaction, categories []categorization.Category) error {
	rows := make([]exportRow, 0, len(txns))
	for _, t := range txns {
		row := exportRow{
			Date:        t.Date.Format(ledger.DateLayout),
			Description: t.Description,
			AmountOut:   t.AmountOut.StringFixed(2),
			AmountIn:    t.AmountIn.StringFixed(2),
			Format:      t.SourceFormatID,
		}
		if t.CategoryID != nil {
			if c := categorization.FindByID(categories, *t.CategoryID); c != nil {
				row.Category = c.Name
			}
		}
		if t.ImportBatchID != nil {
			row.BatchID = t.ImportBatchID.String()
		}
		rows = append(rows, row)
	}
	if err := gocsv.Marshal(rows, out); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}
