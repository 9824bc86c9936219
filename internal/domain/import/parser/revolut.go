package parser

import (
	"strings"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// RevolutID identifies the Revolut account statement.
const RevolutID = "revolut"

// Revolut parses Revolut account statements:
//
//	Type,Product,Started Date,Completed Date,Description,Amount,Fee,Currency,State,Balance
//
// Completed Date is an ISO datetime. Amount is signed; Fee is charged on
// top and always counts as money out. Rows whose State is not COMPLETED
// (pending, reverted, declined) are skipped and counted. The match field
// is "Type Description", so a keyword such as "TOPUP" can match the type.
type Revolut struct{}

var (
	revolutHeaders  = []string{"Type", "Product", "Started Date", "Completed Date", "Description", "Amount", "Fee", "Currency", "State", "Balance"}
	revolutRequired = []string{"Completed Date", "Type", "Started Date", "Description", "Amount", "Fee", "Currency", "State"}
)

const revolutCompleted = "COMPLETED"

func (Revolut) ID() string   { return RevolutID }
func (Revolut) Name() string { return "Revolut" }

func (Revolut) Detect(g *tabular.Grid) Detection {
	return detectByHeaders(RevolutID, "Revolut", g, revolutHeaders, revolutRequired)
}

func (Revolut) Validate(g *tabular.Grid) ValidationResult {
	t, _ := findHeader(g, revolutRequired)
	date, desc, state := t.col("Completed Date"), t.col("Description"), t.col("State")
	if t.row < 0 || date < 0 || desc < 0 || t.col("Amount") < 0 {
		return ValidationResult{Errors: []string{"missing Revolut columns Completed Date, Description or Amount"}}
	}

	check := checkDateAndDescription(date, desc, normalizer.DateISO)
	return sampleValidate(g, t.row+1, max(date, desc)+1, func(r tabular.Row) string {
		// Pending rows carry no completion date.
		if state >= 0 && !strings.EqualFold(r.Text(state), revolutCompleted) {
			return ""
		}
		return check(r)
	})
}

func (Revolut) Parse(g *tabular.Grid) *ParseResult {
	res := &ParseResult{FormatID: RevolutID}
	t, _ := findHeader(g, revolutRequired)
	if t.row < 0 {
		return res
	}
	var (
		typeCol   = t.col("Type")
		dateCol   = t.col("Completed Date")
		descCol   = t.col("Description")
		amountCol = t.col("Amount")
		feeCol    = t.col("Fee")
		stateCol  = t.col("State")
	)

	for i := t.row + 1; i < g.Len(); i++ {
		row := g.Row(i)
		if row.IsBlank() {
			continue
		}
		res.TotalRows++
		n := rowNumber(i)

		if stateCol >= 0 && !strings.EqualFold(row.Text(stateCol), revolutCompleted) {
			res.SkippedRows++
			continue
		}

		date, err := parseDate(row.At(dateCol), normalizer.DateISO)
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
		fee, err := parseAmount(row.At(feeCol), normalizer.StyleDot)
		if err != nil {
			res.addError(n, "fee", "invalid fee", row.Text(feeCol))
			continue
		}

		out, in := normalizer.SplitSigned(amount)
		out = out.Add(fee.Abs())

		res.add(ledger.CanonicalTransaction{
			Date:           date,
			Description:    desc,
			MatchField:     normalizer.JoinMatchField(row.Text(typeCol), desc),
			AmountOut:      out,
			AmountIn:       in,
			SourceFormatID: RevolutID,
		})
	}
	return res
}
