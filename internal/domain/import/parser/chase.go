package parser

import (
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// ChaseID identifies the Chase checking export.
const ChaseID = "chase"

// Chase parses Chase checking CSV exports:
//
//	Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #
//
// Dates are MM/DD/YYYY. Amount is a single signed column: negative is money
// out, positive is money in.
type Chase struct{}

var (
	chaseHeaders  = []string{"Details", "Posting Date", "Description", "Amount", "Type", "Balance", "Check or Slip #"}
	chaseRequired = []string{"Posting Date", "Description", "Amount"}
)

const chaseDateFormat = normalizer.DateMDY

func (Chase) ID() string   { return ChaseID }
func (Chase) Name() string { return "Chase" }

func (Chase) Detect(g *tabular.Grid) Detection {
	return detectByHeaders(ChaseID, "Chase", g, chaseHeaders, chaseRequired)
}

func (Chase) Validate(g *tabular.Grid) ValidationResult {
	t, found := findHeader(g, chaseRequired)
	if found < len(chaseRequired) {
		return ValidationResult{Errors: []string{"missing Chase columns Posting Date, Description or Amount"}}
	}
	date, desc := t.col("Posting Date"), t.col("Description")
	return sampleValidate(g, t.row+1, max(date, desc)+1, checkDateAndDescription(date, desc, chaseDateFormat))
}

func (Chase) Parse(g *tabular.Grid) *ParseResult {
	res := &ParseResult{FormatID: ChaseID}
	t, found := findHeader(g, chaseRequired)
	if found < len(chaseRequired) {
		return res
	}
	dateCol, descCol, amountCol := t.col("Posting Date"), t.col("Description"), t.col("Amount")

	for i := t.row + 1; i < g.Len(); i++ {
		row := g.Row(i)
		if row.IsBlank() {
			continue
		}
		res.TotalRows++
		n := rowNumber(i)

		date, err := parseDate(row.At(dateCol), chaseDateFormat)
		if err != nil {
			res.addError(n, "date", err.Error(), row.Text(dateCol))
			continue
		}
		desc := normalizer.CleanDescription(row.Text(descCol))
		if desc == "" {
			res.addError(n, "description", "missing description", "")
			continue
		}
		amount, err := parseAmount(row.At(amountCol), normalizer.StyleDot)
		if err != nil || row.At(amountCol).IsEmpty() {
			res.addError(n, "amount", "invalid amount", row.Text(amountCol))
			continue
		}

		out, in := normalizer.SplitSigned(amount)
		res.add(ledger.CanonicalTransaction{
			Date:           date,
			Description:    desc,
			MatchField:     desc,
			AmountOut:      out,
			AmountIn:       in,
			SourceFormatID: ChaseID,
		})
	}
	return res
}
