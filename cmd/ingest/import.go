package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	importservice "github.com/FACorreiaa/statement-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/session"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

type mappingFlags struct {
	dateCol, descCol, outCol, inCol int
	matchCols                       []int
	headerRow                       int
	noHeaders                       bool
	signed                          bool
	decimalComma                    bool
	dateFormat                      string
}

func (f *mappingFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.IntVar(&f.dateCol, "date-col", -1, "date column (0-based)")
	fl.IntVar(&f.descCol, "desc-col", -1, "description column")
	fl.IntVar(&f.outCol, "out-col", -1, "money-out column")
	fl.IntVar(&f.inCol, "in-col", -1, "money-in column, or the signed amount column with --signed")
	fl.IntSliceVar(&f.matchCols, "match-cols", nil, "columns joined into the text keywords match against")
	fl.IntVar(&f.headerRow, "header-row", 0, "row holding the column headers")
	fl.BoolVar(&f.noHeaders, "no-headers", false, "the file has no header row")
	fl.BoolVar(&f.signed, "signed", false, "one signed amount column; negatives are money out")
	fl.BoolVar(&f.decimalComma, "decimal-comma", false, "amounts use a decimal comma (1.234,56)")
	fl.StringVar(&f.dateFormat, "date-format", "", "date format: iso, dmy, mdy, long_dmy or long_mdy")
}

// mapping returns the mapping given on the command line, or nil when no
// column flag was set.
func (f *mappingFlags) mapping() (*sniffer.ColumnMapping, error) {
	if f.dateCol < 0 && f.descCol < 0 && f.outCol < 0 && f.inCol < 0 {
		return nil, nil
	}
	m := sniffer.ColumnMapping{
		DateColumn:        f.dateCol,
		DescriptionColumn: f.descCol,
		AmountOutColumn:   f.outCol,
		AmountInColumn:    f.inCol,
		MatchFieldColumns: f.matchCols,
		HasHeaders:        !f.noHeaders,
		HeaderRow:         f.headerRow,
		UseNegativeForOut: f.signed,
		DecimalComma:      f.decimalComma,
	}
	if f.dateFormat != "" {
		df, err := normalizer.ParseFormat(f.dateFormat)
		if err != nil {
			return nil, err
		}
		m.DateFormat = df
	}
	if err := m.Validate(0); err != nil {
		return nil, fmt.Errorf("invalid column mapping: %w", err)
	}
	return &m, nil
}

type importFlags struct {
	format           string
	mapping          mappingFlags
	saveMapping      string
	resolve          []string
	set              []string
	addKeyword       []string
	importDuplicates bool
	importRows       []int
	interactive      bool
	dryRun           bool
}

func newImportCommand(a *app) *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Parse, review and commit a bank statement",
		Long: `Import parses a statement, categorizes each row by keyword and flags rows
already in the ledger. Conflicts (rows matching several categories) must be
resolved before the batch is committed, either with --resolve or by answering
the prompts of --interactive. Duplicates are skipped unless imported
explicitly. Row numbers start at 1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read statement: %w", err)
			}
			return a.run(cmd.Context(), func(ctx context.Context, deps *Dependencies) error {
				return runImport(ctx, cmd.OutOrStdout(), cmd.InOrStdin(), deps, filepath.Base(args[0]), data, f)
			})
		},
	}
	f.mapping.register(cmd)
	fl := cmd.Flags()
	fl.StringVar(&f.format, "format", "", "force a format: chase, revolut, cgd, generic or a preset name")
	fl.StringVar(&f.saveMapping, "save-mapping", "", "remember the column flags under this name for files with the same headers")
	fl.StringArrayVar(&f.resolve, "resolve", nil, "resolve a conflict, ROW=CATEGORY (repeatable)")
	fl.StringArrayVar(&f.set, "set", nil, "override a row's category, ROW=CATEGORY or ROW=none (repeatable)")
	fl.StringArrayVar(&f.addKeyword, "add-keyword", nil, "add a keyword before review, CATEGORY=KEYWORD (repeatable)")
	fl.BoolVar(&f.importDuplicates, "import-duplicates", false, "import every duplicate row")
	fl.IntSliceVar(&f.importRows, "import-row", nil, "import these duplicate rows")
	fl.BoolVarP(&f.interactive, "interactive", "i", false, "prompt for conflicts and duplicates")
	fl.BoolVar(&f.dryRun, "dry-run", false, "review only; commit nothing")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, in io.Reader, deps *Dependencies, fileName string, data []byte, f importFlags) error {
	svc := deps.Imports
	mapping, err := f.mapping.mapping()
	if err != nil {
		return err
	}
	opts := importservice.ParseOptions{FormatID: f.format, Mapping: mapping}
	if mapping != nil && opts.FormatID == "" {
		opts.FormatID = parser.GenericID
	}

	if f.saveMapping != "" {
		if mapping == nil {
			return errors.New("--save-mapping needs the column flags")
		}
		res, err := svc.Analyze(ctx, fileName, data)
		if err != nil {
			return err
		}
		if err := svc.SaveMapping(ctx, res.Inference.Fingerprint, f.saveMapping, *mapping); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved mapping %q\n", f.saveMapping)
	}

	sess, err := svc.StartSession(ctx, fileName, data, opts)
	if err != nil {
		var verr *parser.ValidationError
		switch {
		case errors.Is(err, parser.ErrMappingNeeded):
			if errors.As(err, &verr) {
				fmt.Fprintf(out, "No format accepted the file (%s).\n", verr)
			}
			fmt.Fprintln(out, "The format was not recognised. Re-run with column flags, for example:")
			if res, aerr := svc.Analyze(ctx, fileName, data); aerr == nil {
				printMapping(out, res.SuggestedMapping)
			}
		case errors.As(err, &verr):
			fmt.Fprintln(out, "Format check failed; try --format generic with column flags.")
		}
		return err
	}
	defer svc.DiscardSession(sess.ID)

	printParseErrors(out, sess.ParseErrors())

	for _, pair := range f.addKeyword {
		name, kw, err := splitPair(pair)
		if err != nil {
			return err
		}
		cat, err := deps.Categories.ResolveByName(ctx, name)
		if err != nil {
			return err
		}
		res, err := svc.AddKeyword(ctx, cat.ID, kw)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "added %q to %s (%d ledger rows recategorized)\n", kw, cat.Name, res.Changed())
	}
	if sess.Dirty() {
		sess.Reprocess()
	}

	if err := applyChoices(sess, f); err != nil {
		return err
	}
	if f.interactive {
		if err := prompt(out, bufio.NewScanner(in), sess); err != nil {
			return err
		}
	}

	printSession(out, sess, deps.Config.Import.Currency)

	if sess.Blocking() {
		return fmt.Errorf("%w: resolve them with --resolve or --interactive", session.ErrBlocked)
	}
	if f.dryRun {
		fmt.Fprintln(out, "dry run; nothing committed")
		return nil
	}

	res, err := svc.Commit(ctx, sess.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "committed batch %s: %d added, %d skipped, %s debited\n",
		res.BatchID, res.Added, res.Skipped, money.NewFromDecimal(res.TotalDebited, deps.Config.Import.Currency).Display())
	if res.StoragePath != "" {
		fmt.Fprintf(out, "source archived at %s\n", res.StoragePath)
	}
	return nil
}

// applyChoices applies the --resolve, --set and duplicate flags.
func applyChoices(sess *session.Session, f importFlags) error {
	categories := sess.Categories()
	for _, pair := range f.resolve {
		row, cat, err := rowCategory(pair, categories)
		if err != nil {
			return err
		}
		if cat == nil {
			return fmt.Errorf("--resolve %s: a conflict needs a category", pair)
		}
		if err := sess.ResolveConflict(row, cat.ID); err != nil {
			return fmt.Errorf("--resolve %s: %w", pair, err)
		}
	}
	for _, pair := range f.set {
		row, cat, err := rowCategory(pair, categories)
		if err != nil {
			return err
		}
		var id *uuid.UUID
		if cat != nil {
			id = &cat.ID
		}
		if err := sess.SetCategory(row, id); err != nil {
			return fmt.Errorf("--set %s: %w", pair, err)
		}
	}
	if f.importDuplicates {
		sess.ImportAllDuplicates()
	}
	for _, n := range f.importRows {
		if err := sess.SetDuplicateDecision(n-1, true); err != nil {
			return fmt.Errorf("--import-row %d: %w", n, err)
		}
	}
	return nil
}

// prompt asks for a category for every open conflict and a decision for
// every duplicate.
func prompt(out io.Writer, in *bufio.Scanner, sess *session.Session) error {
	categories := sess.Categories()
	for _, tx := range sess.Transactions() {
		switch {
		case tx.Status().Conflict:
			fmt.Fprintf(out, "\nrow %d: %s %s %s matches several categories:\n",
				tx.Index+1, tx.Date.Format("2006-01-02"), tx.Description, tx.NetAmount().StringFixed(2))
			for i, id := range tx.Candidates {
				if c := categorization.FindByID(categories, id); c != nil {
					fmt.Fprintf(out, "  %d) %s\n", i+1, c.Name)
				}
			}
			for {
				choice, err := ask(out, in, "choose a category: ")
				if err != nil {
					return err
				}
				n, err := strconv.Atoi(choice)
				if err != nil || n < 1 || n > len(tx.Candidates) {
					fmt.Fprintf(out, "enter a number between 1 and %d\n", len(tx.Candidates))
					continue
				}
				if err := sess.ResolveConflict(tx.Index, tx.Candidates[n-1]); err != nil {
					return err
				}
				break
			}
		case tx.IsDuplicate && !tx.ImportDuplicate:
			fmt.Fprintf(out, "\nrow %d: %s %s %s is already in the ledger\n",
				tx.Index+1, tx.Date.Format("2006-01-02"), tx.Description, tx.NetAmount().StringFixed(2))
			answer, err := ask(out, in, "import it anyway? [y/N] ")
			if err != nil {
				return err
			}
			importIt := strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
			if err := sess.SetDuplicateDecision(tx.Index, importIt); err != nil {
				return err
			}
		}
	}
	return nil
}

func ask(out io.Writer, in *bufio.Scanner, question string) (string, error) {
	fmt.Fprint(out, question)
	if !in.Scan() {
		if err := in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(in.Text()), nil
}

func printParseErrors(out io.Writer, errs []parser.ParseError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(out, "%d rows could not be parsed:\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(out, "  %s\n", e.Error())
	}
}

func printSession(out io.Writer, sess *session.Session, currency string) {
	categories := sess.Categories()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tDATE\tDESCRIPTION\tOUT\tIN\tCATEGORY\tSTATUS")
	for _, tx := range sess.Transactions() {
		name := "-"
		if tx.CategoryID != nil {
			if c := categorization.FindByID(categories, *tx.CategoryID); c != nil {
				name = c.Name
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.Index+1, tx.Date.Format("2006-01-02"), tx.Description,
			tx.AmountOut.StringFixed(2), tx.AmountIn.StringFixed(2), name, statusLabel(tx))
	}
	tw.Flush()

	sum := sess.Summary()
	fmt.Fprintf(out, "\n%d transactions, %d to import (%s debited), %d conflicts, %d duplicates, %d uncategorized\n",
		sum.Total, sum.ToImport, money.NewFromDecimal(sum.TotalDebited, currency).Display(),
		sum.Conflicts, sum.Duplicates, sum.Uncategorized)
}

func statusLabel(tx session.Transaction) string {
	st := tx.Status()
	switch {
	case st.Conflict:
		return "conflict"
	case tx.IsDuplicate && tx.ImportDuplicate:
		return "duplicate (import)"
	case tx.IsDuplicate:
		return "duplicate (skip)"
	case st.Uncategorized:
		return "uncategorized"
	}
	return ""
}

// rowCategory parses ROW=CATEGORY. The category "none" yields nil.
func rowCategory(pair string, categories []categorization.Category) (int, *categorization.Category, error) {
	left, right, err := splitPair(pair)
	if err != nil {
		return 0, nil, err
	}
	n, err := strconv.Atoi(left)
	if err != nil || n < 1 {
		return 0, nil, fmt.Errorf("invalid row in %q", pair)
	}
	if strings.EqualFold(right, "none") {
		return n - 1, nil, nil
	}
	cat := categorization.FindByName(categories, right)
	if cat == nil {
		if s := categorization.SuggestName(right, categories); s != "" {
			return 0, nil, fmt.Errorf("%w: %q (did you mean %q?)", categorization.ErrCategoryNotFound, right, s)
		}
		return 0, nil, fmt.Errorf("%w: %q", categorization.ErrCategoryNotFound, right)
	}
	return n - 1, cat, nil
}

func splitPair(pair string) (string, string, error) {
	left, right, ok := strings.Cut(pair, "=")
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	if !ok || left == "" || right == "" {
		return "", "", fmt.Errorf("expected KEY=VALUE, got %q", pair)
	}
	return left, right, nil
}
