package sniffer

import (
	"strings"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
)

// ColumnType is the inferred content class of a column.
type ColumnType string

const (
	TypeDate    ColumnType = "date"
	TypeAmount  ColumnType = "amount"
	TypeText    ColumnType = "text"
	TypeUnknown ColumnType = "unknown"
)

// Confidence grades a column classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceNone   Confidence = "none"
)

const (
	// SampleSize is how many non-empty cells are sampled per column.
	SampleSize = 20

	highRatio   = 0.8
	mediumRatio = 0.5
)

// ColumnProfile describes one sampled column.
type ColumnProfile struct {
	Index      int        `json:"index"`
	Header     string     `json:"header,omitempty"`
	Type       ColumnType `json:"type"`
	Confidence Confidence `json:"confidence"`
	Ratio      float64    `json:"ratio"`
	Samples    []string   `json:"samples,omitempty"`

	dateRatio   float64
	amountRatio float64
	avgLen      float64
}

// Inference is the result of sniffing a grid.
type Inference struct {
	HeaderRow   int                   `json:"header_row"`
	HasHeaders  bool                  `json:"has_headers"`
	HeaderScore int                   `json:"header_score"`
	Headers     []string              `json:"headers,omitempty"`
	Fingerprint string                `json:"fingerprint,omitempty"`
	Columns     []ColumnProfile       `json:"columns"`
	DateFormat  normalizer.DateFormat `json:"date_format,omitempty"`
	Mapping     ColumnMapping         `json:"mapping"`
}

// Column role keywords, most specific first.
var (
	dateKeywords = []string{"data mov", "posting date", "transaction date", "completed date", "booking date",
		"date", "fecha", "datum", "data"}
	descriptionKeywords = []string{"description", "descrição", "descricao", "descripción", "descripcion",
		"merchant", "payee", "narrative", "memo", "concepto", "details", "nome", "name"}
	outKeywords = []string{"débito", "debito", "debit", "cargo", "withdrawal", "money out", "paid out", "saída", "saida"}
	inKeywords  = []string{"crédito", "credito", "credit", "abono", "deposit", "money in", "paid in", "entrada"}
	// A single signed column.
	amountKeywords = []string{"amount", "montante", "importe", "valor", "value", "montant", "betrag"}
)

// Infer profiles the grid and proposes a column mapping.
func Infer(g *tabular.Grid) *Inference {
	start := TableStart(g)
	inf := &Inference{
		HeaderRow:   start,
		HeaderScore: HeaderScore(g.Row(start), g.Row(start+1)),
	}
	inf.HasHeaders = inf.HeaderScore > 0

	dataStart := start
	if inf.HasHeaders {
		inf.Headers = Headers(g, start)
		inf.Fingerprint = Fingerprint(inf.Headers)
		dataStart = start + 1
	}

	inf.Columns = ProfileColumns(g, dataStart)
	for i := range inf.Columns {
		if i < len(inf.Headers) {
			inf.Columns[i].Header = inf.Headers[i]
		}
	}

	inf.Mapping = suggestMapping(inf)
	if idx := inf.Mapping.DateColumn; idx >= 0 {
		if f, _, ok := normalizer.DetectDateFormat(inf.Columns[idx].Samples); ok {
			inf.DateFormat = f
			inf.Mapping.DateFormat = f
		}
	}
	return inf
}

// ProfileColumns samples up to SampleSize non-empty cells per column,
// starting at row from, and classifies each column.
func ProfileColumns(g *tabular.Grid, from int) []ColumnProfile {
	profiles := make([]ColumnProfile, g.Width)
	for col := range profiles {
		var samples []string
		for r := from; r < g.Len() && len(samples) < SampleSize; r++ {
			if cell := g.Row(r).At(col); !cell.IsEmpty() {
				samples = append(samples, cell.Raw)
			}
		}
		profiles[col] = classify(col, samples)
	}
	return profiles
}

func classify(col int, samples []string) ColumnProfile {
	p := ColumnProfile{Index: col, Type: TypeUnknown, Confidence: ConfidenceNone, Samples: samples}
	if len(samples) == 0 {
		return p
	}

	dates, amounts, texts, totalLen := 0, 0, 0, 0
	for _, s := range samples {
		totalLen += len(s)
		switch {
		case normalizer.LooksLikeDate(s):
			dates++
		case normalizer.LooksLikeAmount(s):
			amounts++
		default:
			texts++
		}
	}
	n := float64(len(samples))
	p.dateRatio = float64(dates) / n
	p.amountRatio = float64(amounts) / n
	p.avgLen = float64(totalLen) / n

	// Dates are checked first: compact dates such as 20240105 also parse
	// as plain numbers.
	switch {
	case p.dateRatio >= mediumRatio:
		p.Type, p.Ratio = TypeDate, p.dateRatio
	case p.amountRatio >= mediumRatio:
		p.Type, p.Ratio = TypeAmount, p.amountRatio
	case float64(texts)/n >= mediumRatio:
		p.Type, p.Ratio = TypeText, float64(texts)/n
	default:
		return p
	}
	p.Confidence = ConfidenceMedium
	if p.Ratio >= highRatio {
		p.Confidence = ConfidenceHigh
	}
	return p
}

// suggestMapping assigns roles from header keywords first and falls back
// to column types and position for any role the header leaves open.
func suggestMapping(inf *Inference) ColumnMapping {
	m := NewColumnMapping()
	m.HasHeaders = inf.HasHeaders
	m.HeaderRow = inf.HeaderRow

	used := make(map[int]bool)
	pick := func(keywords []string, want ColumnType) int {
		if len(inf.Headers) == 0 {
			return -1
		}
		for _, kw := range keywords {
			for i, h := range inf.Headers {
				if used[i] || i >= len(inf.Columns) {
					continue
				}
				// A header match is trusted unless the samples clearly say otherwise.
				if strings.Contains(strings.ToLower(h), kw) && compatible(inf.Columns[i], want) {
					used[i] = true
					return i
				}
			}
		}
		return -1
	}

	m.DateColumn = pick(dateKeywords, TypeDate)
	m.AmountOutColumn = pick(outKeywords, TypeAmount)
	m.AmountInColumn = pick(inKeywords, TypeAmount)
	if m.AmountInColumn < 0 && m.AmountOutColumn < 0 {
		if signed := pick(amountKeywords, TypeAmount); signed >= 0 {
			m.AmountInColumn, m.AmountOutColumn = signed, signed
			m.UseNegativeForOut = true
		}
	}
	m.DescriptionColumn = pick(descriptionKeywords, TypeText)

	if m.DateColumn < 0 {
		m.DateColumn = firstOfType(inf.Columns, TypeDate, used)
	}
	if m.AmountInColumn < 0 && m.AmountOutColumn < 0 {
		amountCols := allOfType(inf.Columns, TypeAmount, used)
		switch {
		case len(amountCols) == 1:
			m.AmountInColumn, m.AmountOutColumn = amountCols[0], amountCols[0]
			m.UseNegativeForOut = true
		case len(amountCols) >= 2:
			// Debit before credit is the common layout.
			m.AmountOutColumn, m.AmountInColumn = amountCols[0], amountCols[1]
			used[amountCols[0]], used[amountCols[1]] = true, true
		}
	}
	if m.DescriptionColumn < 0 {
		m.DescriptionColumn = longestText(inf.Columns, used)
	}

	var amounts []string
	for _, idx := range []int{m.AmountOutColumn, m.AmountInColumn} {
		if idx >= 0 {
			amounts = append(amounts, inf.Columns[idx].Samples...)
		}
	}
	m.DecimalComma = normalizer.DetectNumberStyle(amounts) == normalizer.StyleComma
	return m
}

func compatible(p ColumnProfile, want ColumnType) bool {
	if p.Type == TypeUnknown || p.Type == want {
		return true
	}
	// Description columns may look numeric for a few rows (cheque numbers).
	return want == TypeText && p.Type != TypeDate
}

func firstOfType(cols []ColumnProfile, t ColumnType, used map[int]bool) int {
	for _, c := range cols {
		if c.Type == t && !used[c.Index] {
			used[c.Index] = true
			return c.Index
		}
	}
	return -1
}

func allOfType(cols []ColumnProfile, t ColumnType, used map[int]bool) []int {
	var out []int
	for _, c := range cols {
		if c.Type == t && !used[c.Index] {
			out = append(out, c.Index)
		}
	}
	return out
}

func longestText(cols []ColumnProfile, used map[int]bool) int {
	best, bestLen := -1, 0.0
	for _, c := range cols {
		if c.Type == TypeText && !used[c.Index] && c.avgLen > bestLen {
			best, bestLen = c.Index, c.avgLen
		}
	}
	if best >= 0 {
		used[best] = true
	}
	return best
}
