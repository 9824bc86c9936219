// Package tabular turns raw statement files into a rectangular grid of
// classified cells.
package tabular

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the class of a cell.
type Kind int

const (
	Empty Kind = iota
	Text
	Number
	DateLike
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Text:
		return "text"
	case Number:
		return "number"
	case DateLike:
		return "date"
	default:
		return "unknown"
	}
}

// Cell is a classified value. Raw always holds the trimmed source text;
// Number and Date are set only for the matching kinds.
type Cell struct {
	Kind   Kind
	Raw    string
	Number decimal.Decimal
	Date   time.Time
}

var (
	plainNumberRe = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([ T]\d{2}:\d{2}(:\d{2})?)?$`)
)

// Classify builds a cell from source text. Only unambiguous values are
// typed: plain dot-decimal numbers and ISO dates. Anything needing a
// convention (1.234,56 or 01/02/2024) stays Text for later inference.
func Classify(raw string) Cell {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if raw == "" {
		return Cell{Kind: Empty}
	}
	if plainNumberRe.MatchString(raw) {
		if d, err := decimal.NewFromString(raw); err == nil {
			return Cell{Kind: Number, Raw: raw, Number: d}
		}
	}
	if isoDateRe.MatchString(raw) {
		for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return Cell{Kind: DateLike, Raw: raw, Date: t}
			}
		}
	}
	return Cell{Kind: Text, Raw: raw}
}

// IsEmpty reports whether the cell holds nothing.
func (c Cell) IsEmpty() bool { return c.Kind == Empty }

// String returns the raw text of the cell.
func (c Cell) String() string { return c.Raw }

// Row is one line of the grid.
type Row []Cell

// IsBlank reports whether every cell of the row is empty.
func (r Row) IsBlank() bool {
	for _, c := range r {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// At returns the cell at index i, or an empty cell when out of range.
func (r Row) At(i int) Cell {
	if i < 0 || i >= len(r) {
		return Cell{Kind: Empty}
	}
	return r[i]
}

// Text returns the raw text at index i.
func (r Row) Text(i int) string {
	return r.At(i).Raw
}

// Strings returns the raw text of every cell.
func (r Row) Strings() []string {
	out := make([]string, len(r))
	for i, c := range r {
		out[i] = c.Raw
	}
	return out
}

// Grid is the table read from one file. Rows keep the length they had in
// the source so parsers can detect short rows; Width is the longest one.
// Out-of-range access through Row.At yields empty cells.
type Grid struct {
	Source string
	Sheet  string
	Rows   []Row
	Width  int
}

// NewGrid builds a grid from string records and drops trailing blank rows.
func NewGrid(source string, records [][]string) *Grid {
	g := &Grid{Source: source}
	for _, rec := range records {
		row := make(Row, len(rec))
		for i, v := range rec {
			row[i] = Classify(v)
		}
		g.Rows = append(g.Rows, row)
		if len(row) > g.Width {
			g.Width = len(row)
		}
	}
	for len(g.Rows) > 0 && g.Rows[len(g.Rows)-1].IsBlank() {
		g.Rows = g.Rows[:len(g.Rows)-1]
	}
	return g
}

// Len returns the number of rows.
func (g *Grid) Len() int { return len(g.Rows) }

// Row returns row i, or nil when out of range.
func (g *Grid) Row(i int) Row {
	if i < 0 || i >= len(g.Rows) {
		return nil
	}
	return g.Rows[i]
}

// NonEmptyWidth returns how many cells of row i are not empty.
func (g *Grid) NonEmptyWidth(i int) int {
	n := 0
	for _, c := range g.Row(i) {
		if !c.IsEmpty() {
			n++
		}
	}
	return n
}
