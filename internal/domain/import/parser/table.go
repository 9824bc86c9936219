package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
)

const (
	// ValidationSample bounds how many data rows Validate inspects.
	ValidationSample = 20
	maxHeaderSearch  = 20
)

// headerTable is a table located by its header row.
type headerTable struct {
	row   int
	cols  map[string]int
	names []string
}

func normHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// findHeader returns the row among the first maxHeaderSearch rows holding
// the most of the required headers, and how many it holds.
func findHeader(g *tabular.Grid, required []string) (headerTable, int) {
	best, bestFound := headerTable{row: -1}, 0
	for i := 0; i < g.Len() && i < maxHeaderSearch; i++ {
		t := headerTable{row: i, cols: make(map[string]int)}
		for idx, cell := range g.Row(i) {
			if cell.Kind != tabular.Text {
				continue
			}
			name := normHeader(cell.Raw)
			if _, dup := t.cols[name]; !dup {
				t.cols[name] = idx
			}
			t.names = append(t.names, name)
		}
		found := 0
		for _, r := range required {
			if t.col(r) >= 0 {
				found++
			}
		}
		if found > bestFound {
			best, bestFound = t, found
		}
	}
	return best, bestFound
}

func (t headerTable) col(name string) int {
	if idx, ok := t.cols[normHeader(name)]; ok {
		return idx
	}
	return -1
}

// first returns the index of the first present header among names.
func (t headerTable) first(names ...string) int {
	for _, n := range names {
		if idx := t.col(n); idx >= 0 {
			return idx
		}
	}
	return -1
}

func (t headerTable) hasExactly(expected []string) bool {
	want := make(map[string]bool, len(expected))
	for _, e := range expected {
		want[normHeader(e)] = true
	}
	got := make(map[string]bool, len(t.names))
	for _, n := range t.names {
		got[n] = true
	}
	if len(got) != len(want) {
		return false
	}
	for n := range got {
		if !want[n] {
			return false
		}
	}
	return true
}

// detectByHeaders grades a grid against a header layout. required[0] is
// the key column; without it the format never claims the file.
//   - the header set equals expected: high
//   - every required column is present: medium
//   - at least half of the required columns: low
func detectByHeaders(id, name string, g *tabular.Grid, expected, required []string) Detection {
	t, found := findHeader(g, required)
	d := Detection{FormatID: id}
	switch {
	case found == 0 || t.col(required[0]) < 0:
		return Detection{Confidence: ConfidenceNone, Reason: fmt.Sprintf("no %s header found", name)}
	case found == len(required) && t.hasExactly(expected):
		d.Confidence = ConfidenceHigh
		d.Reason = fmt.Sprintf("header matches the %s export", name)
	case found == len(required):
		d.Confidence = ConfidenceMedium
		d.Reason = fmt.Sprintf("all %s columns present", name)
	case found*2 >= len(required):
		d.Confidence = ConfidenceLow
		d.Reason = fmt.Sprintf("%d of %d %s columns present", found, len(required), name)
	default:
		return Detection{Confidence: ConfidenceNone, Reason: fmt.Sprintf("only %d of %d %s columns present", found, len(required), name)}
	}
	return d
}

// rowCheck reports the problem with a sampled row, or "".
type rowCheck func(r tabular.Row) string

// sampleValidate inspects up to ValidationSample non-blank rows from start.
// The format fails when more than half of them are short or fail check.
func sampleValidate(g *tabular.Grid, start, minWidth int, check rowCheck) ValidationResult {
	var problems []string
	sampled := 0
	for i := start; i < g.Len() && sampled < ValidationSample; i++ {
		row := g.Row(i)
		if row.IsBlank() {
			continue
		}
		sampled++
		switch {
		case len(row) < minWidth:
			problems = append(problems, fmt.Sprintf("row %d: expected at least %d columns, got %d", i+1, minWidth, len(row)))
		default:
			if msg := check(row); msg != "" {
				problems = append(problems, fmt.Sprintf("row %d: %s", i+1, msg))
			}
		}
	}

	if sampled == 0 {
		return ValidationResult{Errors: []string{"no data rows"}}
	}
	if len(problems)*2 > sampled {
		return ValidationResult{
			Errors: append([]string{fmt.Sprintf("%d of %d sampled rows do not fit", len(problems), sampled)}, problems...),
		}
	}
	return ValidationResult{IsValid: true, Warnings: problems}
}

// checkDateAndDescription is the row check shared by every format.
func checkDateAndDescription(dateCol, descCol int, format normalizer.DateFormat) rowCheck {
	return func(r tabular.Row) string {
		if _, err := parseDate(r.At(dateCol), format); err != nil {
			return err.Error()
		}
		if r.Text(descCol) == "" {
			return "empty description"
		}
		return ""
	}
}

// parseDate reads a date cell under format. Spreadsheet serial numbers
// are accepted as a fallback.
func parseDate(c tabular.Cell, format normalizer.DateFormat) (time.Time, error) {
	if c.Kind == tabular.DateLike {
		return time.Date(c.Date.Year(), c.Date.Month(), c.Date.Day(), 0, 0, 0, 0, time.UTC), nil
	}

	var (
		t   time.Time
		err error
	)
	if format == "" {
		t, _, err = normalizer.ParseDateAny(c.Raw)
	} else {
		t, err = normalizer.ParseDate(c.Raw, format)
	}
	if err == nil {
		return t, nil
	}

	if c.Kind == tabular.Number {
		serial := c.Number.InexactFloat64()
		if serial > 20000 && serial < 80000 {
			if st, serr := excelize.ExcelDateToTime(serial, false); serr == nil {
				return time.Date(st.Year(), st.Month(), st.Day(), 0, 0, 0, 0, time.UTC), nil
			}
		}
	}
	return time.Time{}, err
}

// parseAmount reads an amount cell. Empty cells are zero.
func parseAmount(c tabular.Cell, style normalizer.NumberStyle) (decimal.Decimal, error) {
	switch c.Kind {
	case tabular.Empty:
		return decimal.Zero, nil
	case tabular.Number:
		if style != normalizer.StyleComma {
			return c.Number, nil
		}
	}
	return normalizer.ParseAmount(c.Raw, style)
}

// rowNumber converts a grid index into the 1-based line shown to users.
func rowNumber(idx int) int { return idx + 1 }
