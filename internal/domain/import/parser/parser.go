// Package parser turns statement grids into canonical transactions. Each
// known bank export has its own BankParser; files nobody recognises go
// through the generic, mapping-driven parser.
package parser

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// Confidence grades a detection verdict.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// Detection is a verdict on which format handles a grid.
type Detection struct {
	FormatID   string     `json:"format_id,omitempty"`
	Confidence Confidence `json:"confidence"`
	Reason     string     `json:"reason"`
	// Preset names the mapping preset matched by file name, if any.
	Preset  string                 `json:"preset,omitempty"`
	Mapping *sniffer.ColumnMapping `json:"mapping,omitempty"`
	// NeedsMapping routes the caller to manual column mapping.
	NeedsMapping bool `json:"needs_mapping,omitempty"`
	// Alternatives are the other positive verdicts, best first. They are
	// tried when the chosen format rejects the file.
	Alternatives []Detection `json:"alternatives,omitempty"`
}

// Positive reports whether the verdict claims the file.
func (d Detection) Positive() bool {
	return d.Confidence > ConfidenceNone && d.FormatID != ""
}

// ValidationResult is the outcome of checking a format's structural
// assumptions against a sample of rows.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidationError is returned when a format rejects a file. The caller
// falls back to another format or to manual mapping.
type ValidationError struct {
	FormatID string
	Errors   []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("file does not match format %s", e.FormatID)
	}
	return fmt.Sprintf("file does not match format %s: %s", e.FormatID, strings.Join(e.Errors, "; "))
}

// ParseError represents a parsing error for a specific row
type ParseError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
	RawData string `json:"raw_data,omitempty"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// ParseResult contains the transactions read from a grid
type ParseResult struct {
	FormatID     string
	Transactions []ledger.CanonicalTransaction
	Errors       []ParseError
	TotalRows    int
	ParsedRows   int
	SkippedRows  int
}

// BankParser handles one statement format.
type BankParser interface {
	ID() string
	Name() string
	// Detect judges whether the grid is in this format.
	Detect(g *tabular.Grid) Detection
	// Validate samples a bounded prefix of data rows.
	Validate(g *tabular.Grid) ValidationResult
	// Parse reads every data row; bad rows become ParseErrors.
	Parse(g *tabular.Grid) *ParseResult
}

// Run validates and then parses. A failed validation returns a
// *ValidationError and no result.
func Run(p BankParser, g *tabular.Grid) (*ParseResult, error) {
	if v := p.Validate(g); !v.IsValid {
		return nil, &ValidationError{FormatID: p.ID(), Errors: v.Errors}
	}
	return p.Parse(g), nil
}

func (r *ParseResult) addError(row int, column, message, raw string) {
	r.Errors = append(r.Errors, ParseError{Row: row, Column: column, Message: message, RawData: raw})
}

func (r *ParseResult) add(tx ledger.CanonicalTransaction) {
	r.Transactions = append(r.Transactions, tx)
	r.ParsedRows++
}
