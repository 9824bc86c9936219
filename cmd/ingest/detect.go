package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	importservice "github.com/FACorreiaa/statement-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
)

func newDetectCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "Detect the statement format and infer its columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read statement: %w", err)
			}
			return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				res, err := deps.Imports.Analyze(ctx, filepath.Base(args[0]), data)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}
				printAnalysis(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the analysis as JSON")
	return cmd
}

func printAnalysis(out io.Writer, res *importservice.AnalyzeResult) {
	d := res.Detection
	switch {
	case d.Positive():
		fmt.Fprintf(out, "format:     %s (%s confidence)\n", d.FormatID, d.Confidence)
	default:
		fmt.Fprintln(out, "format:     not recognised")
	}
	if d.Preset != "" {
		fmt.Fprintf(out, "preset:     %s\n", d.Preset)
	}
	fmt.Fprintf(out, "reason:     %s\n", d.Reason)
	if res.SavedMapping != nil {
		fmt.Fprintf(out, "saved map:  %s\n", res.SavedMapping.Name)
	}

	inf := res.Inference
	fmt.Fprintf(out, "headers:    %v (row %d, score %d)\n", inf.HasHeaders, inf.HeaderRow, inf.HeaderScore)
	if inf.Fingerprint != "" {
		fmt.Fprintf(out, "fingerprint: %s\n", inf.Fingerprint)
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COL\tHEADER\tTYPE\tCONFIDENCE\tSAMPLES")
	for _, c := range inf.Columns {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.Index, c.Header, c.Type, c.Confidence, strings.Join(c.Samples, " | "))
	}
	tw.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "suggested mapping:")
	printMapping(out, res.SuggestedMapping)

	if len(res.Preview) > 0 {
		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for i, row := range res.Preview {
			fmt.Fprintf(tw, "%d\t%s\n", i, strings.Join(row, "\t"))
		}
		tw.Flush()
	}
}

func printMapping(out io.Writer, m sniffer.ColumnMapping) {
	fmt.Fprintf(out, "  --date-col %d --desc-col %d --out-col %d --in-col %d",
		m.DateColumn, m.DescriptionColumn, m.AmountOutColumn, m.AmountInColumn)
	if m.HasHeaders {
		fmt.Fprintf(out, " --header-row %d", m.HeaderRow)
	} else {
		fmt.Fprint(out, " --no-headers")
	}
	if m.UseNegativeForOut {
		fmt.Fprint(out, " --signed")
	}
	if m.DecimalComma {
		fmt.Fprint(out, " --decimal-comma")
	}
	if m.DateFormat != "" {
		fmt.Fprintf(out, " --date-format %s", m.DateFormat)
	}
	fmt.Fprintln(out)
}
