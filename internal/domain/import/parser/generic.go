package parser

import (
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// GenericID identifies the mapping-driven parser.
const GenericID = "generic"

// Generic parses any tabular statement through a user supplied column
// mapping. With UseNegativeForOut the single amount column is signed
// (negative is money out); otherwise the in and out columns are read as
// absolute values and an empty cell counts as zero. A mapping without a
// date format gets one inferred from the date column.
type Generic struct {
	Mapping sniffer.ColumnMapping
	// FormatID is recorded on transactions; it defaults to GenericID and
	// carries the preset name when the mapping came from one.
	FormatID string
}

// NewGeneric returns a generic parser for mapping.
func NewGeneric(mapping sniffer.ColumnMapping) *Generic {
	return &Generic{Mapping: mapping, FormatID: GenericID}
}

func (p *Generic) ID() string {
	if p.FormatID == "" {
		return GenericID
	}
	return p.FormatID
}

func (p *Generic) Name() string { return "Custom column mapping" }

// Detect never claims a file; the generic parser is chosen explicitly.
func (p *Generic) Detect(*tabular.Grid) Detection {
	return Detection{Confidence: ConfidenceNone, Reason: "generic parser requires a column mapping"}
}

func (p *Generic) Validate(g *tabular.Grid) ValidationResult {
	if err := p.Mapping.Validate(g.Width); err != nil {
		return ValidationResult{Errors: []string{err.Error()}}
	}
	m := p.Mapping
	format := p.dateFormat(g)
	return sampleValidate(g, m.DataStart(), max(m.DateColumn, m.DescriptionColumn)+1,
		checkDateAndDescription(m.DateColumn, m.DescriptionColumn, format))
}

func (p *Generic) Parse(g *tabular.Grid) *ParseResult {
	res := &ParseResult{FormatID: p.ID()}
	m := p.Mapping
	if err := m.Validate(g.Width); err != nil {
		res.addError(0, "mapping", err.Error(), "")
		return res
	}
	format := p.dateFormat(g)
	style := m.NumberStyle()
	if style == normalizer.StyleAuto {
		style = p.numberStyle(g)
	}

	for i := m.DataStart(); i < g.Len(); i++ {
		row := g.Row(i)
		if row.IsBlank() {
			continue
		}
		res.TotalRows++
		n := rowNumber(i)

		date, err := parseDate(row.At(m.DateColumn), format)
		if err != nil {
			res.addError(n, "date", err.Error(), row.Text(m.DateColumn))
			continue
		}
		desc := normalizer.CleanDescription(row.Text(m.DescriptionColumn))
		if desc == "" {
			res.addError(n, "description", "missing description", "")
			continue
		}
		out, in, perr := p.amounts(row, style)
		if perr != nil {
			perr.Row = n
			res.Errors = append(res.Errors, *perr)
			continue
		}

		matchField := desc
		if len(m.MatchFieldColumns) > 0 {
			parts := make([]string, 0, len(m.MatchFieldColumns))
			for _, col := range m.MatchFieldColumns {
				parts = append(parts, row.Text(col))
			}
			if joined := normalizer.JoinMatchField(parts...); joined != "" {
				matchField = joined
			}
		}

		res.add(ledger.CanonicalTransaction{
			Date:           date,
			Description:    desc,
			MatchField:     matchField,
			AmountOut:      out,
			AmountIn:       in,
			SourceFormatID: p.ID(),
		})
	}
	return res
}

func (p *Generic) amounts(row tabular.Row, style normalizer.NumberStyle) (out, in decimal.Decimal, perr *ParseError) {
	m := p.Mapping
	if m.UseNegativeForOut {
		col := m.SignedColumn()
		cell := row.At(col)
		if cell.IsEmpty() {
			return out, in, &ParseError{Column: "amount", Message: "missing amount"}
		}
		amount, err := parseAmount(cell, style)
		if err != nil {
			return out, in, &ParseError{Column: "amount", Message: err.Error(), RawData: cell.Raw}
		}
		out, in = normalizer.SplitSigned(amount)
		return out, in, nil
	}

	outCell, inCell := row.At(m.AmountOutColumn), row.At(m.AmountInColumn)
	if outCell.IsEmpty() && inCell.IsEmpty() {
		return out, in, &ParseError{Column: "amount", Message: "missing amount"}
	}
	var err error
	if out, err = parseAmount(outCell, style); err != nil {
		return out, in, &ParseError{Column: "amount_out", Message: err.Error(), RawData: outCell.Raw}
	}
	if in, err = parseAmount(inCell, style); err != nil {
		return out, in, &ParseError{Column: "amount_in", Message: err.Error(), RawData: inCell.Raw}
	}
	return out.Abs(), in.Abs(), nil
}

func (p *Generic) dateFormat(g *tabular.Grid) normalizer.DateFormat {
	if p.Mapping.DateFormat != "" {
		return p.Mapping.DateFormat
	}
	profiles := sniffer.ProfileColumns(g, p.Mapping.DataStart())
	if col := p.Mapping.DateColumn; col >= 0 && col < len(profiles) {
		if f, _, ok := normalizer.DetectDateFormat(profiles[col].Samples); ok {
			return f
		}
	}
	// Each row is then parsed by the first grammar that accepts it.
	return ""
}

func (p *Generic) numberStyle(g *tabular.Grid) normalizer.NumberStyle {
	profiles := sniffer.ProfileColumns(g, p.Mapping.DataStart())
	var samples []string
	for _, col := range []int{p.Mapping.AmountOutColumn, p.Mapping.AmountInColumn} {
		if col >= 0 && col < len(profiles) {
			samples = append(samples, profiles[col].Samples...)
		}
	}
	return normalizer.DetectNumberStyle(samples)
}
