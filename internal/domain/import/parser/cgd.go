package parser

import (
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// CGDID identifies the Caixa Geral de Depositos export.
const CGDID = "cgd"

// CGD parses Caixa Geral de Depositos account exports. The table follows a
// preamble of account details and is closed by balance summary lines:
//
//	Data mov.;Data valor;Descrição;Débito;Crédito;Saldo contabilístico;Saldo disponível;Categoria
//
// Dates are DD-MM-YYYY and amounts use a decimal comma (1.234,56). Money
// out and in come from separate Débito and Crédito columns read as
// absolute values; older exports carry a single signed Montante instead.
type CGD struct{}

var (
	cgdHeaders = []string{"Data mov.", "Data valor", "Descrição", "Débito", "Crédito",
		"Saldo contabilístico", "Saldo disponível", "Categoria"}
	cgdRequired = []string{"Data mov.", "Descrição", "Débito", "Crédito"}
	cgdSigned   = []string{"Data mov.", "Descrição", "Montante"}
)

const cgdDateFormat = normalizer.DateDMY

type cgdLayout struct {
	table                           headerTable
	date, desc, debit, credit, sign int
}

func cgdLocate(g *tabular.Grid) (cgdLayout, bool) {
	if t, found := findHeader(g, cgdRequired); found == len(cgdRequired) {
		return cgdLayout{table: t, date: t.col("Data mov."), desc: t.first("Descrição", "Descricao"),
			debit: t.col("Débito"), credit: t.col("Crédito"), sign: -1}, true
	}
	if t, found := findHeader(g, cgdSigned); found == len(cgdSigned) {
		return cgdLayout{table: t, date: t.col("Data mov."), desc: t.first("Descrição", "Descricao"),
			debit: -1, credit: -1, sign: t.col("Montante")}, true
	}
	return cgdLayout{}, false
}

func (CGD) ID() string   { return CGDID }
func (CGD) Name() string { return "Caixa Geral de Depósitos" }

func (CGD) Detect(g *tabular.Grid) Detection {
	d := detectByHeaders(CGDID, "CGD", g, cgdHeaders, cgdRequired)
	if d.Confidence >= ConfidenceMedium {
		return d
	}
	if signed := detectByHeaders(CGDID, "CGD", g, cgdSigned, cgdSigned); signed.Confidence > d.Confidence {
		return signed
	}
	return d
}

func (CGD) Validate(g *tabular.Grid) ValidationResult {
	l, ok := cgdLocate(g)
	if !ok {
		return ValidationResult{Errors: []string{"missing CGD columns Data mov., Descrição and Débito/Crédito or Montante"}}
	}
	check := checkDateAndDescription(l.date, l.desc, cgdDateFormat)
	return sampleValidate(g, l.table.row+1, max(l.date, l.desc)+1, func(r tabular.Row) string {
		if r.At(l.date).IsEmpty() {
			return "" // summary line
		}
		return check(r)
	})
}

func (CGD) Parse(g *tabular.Grid) *ParseResult {
	res := &ParseResult{FormatID: CGDID}
	l, ok := cgdLocate(g)
	if !ok {
		return res
	}

	for i := l.table.row + 1; i < g.Len(); i++ {
		row := g.Row(i)
		if row.IsBlank() {
			continue
		}
		res.TotalRows++
		n := rowNumber(i)

		// Balance summary lines at the end have no movement date.
		if row.At(l.date).IsEmpty() {
			res.SkippedRows++
			continue
		}

		date, err := parseDate(row.At(l.date), cgdDateFormat)
		if err != nil {
			res.addError(n, "date", err.Error(), row.Text(l.date))
			continue
		}
		desc := normalizer.CleanDescription(row.Text(l.desc))
		if desc == "" {
			res.addError(n, "description", "missing description", "")
			continue
		}

		var out, in decimal.Decimal
		if l.sign >= 0 {
			amount, err := parseAmount(row.At(l.sign), normalizer.StyleComma)
			if err != nil || row.At(l.sign).IsEmpty() {
				res.addError(n, "amount", "invalid amount", row.Text(l.sign))
				continue
			}
			out, in = normalizer.SplitSigned(amount)
		} else {
			debit, derr := parseAmount(row.At(l.debit), normalizer.StyleComma)
			credit, cerr := parseAmount(row.At(l.credit), normalizer.StyleComma)
			switch {
			case derr != nil:
				res.addError(n, "debit", derr.Error(), row.Text(l.debit))
				continue
			case cerr != nil:
				res.addError(n, "credit", cerr.Error(), row.Text(l.credit))
				continue
			case row.At(l.debit).IsEmpty() && row.At(l.credit).IsEmpty():
				res.addError(n, "amount", "missing amount", "")
				continue
			}
			out, in = debit.Abs(), credit.Abs()
		}

		res.add(ledger.CanonicalTransaction{
			Date:           date,
			Description:    desc,
			MatchField:     desc,
			AmountOut:      out,
			AmountIn:       in,
			SourceFormatID: CGDID,
		})
	}
	return res
}
