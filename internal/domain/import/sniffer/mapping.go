package sniffer

import (
	"errors"
	"fmt"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
)

var (
	ErrMissingColumn   = errors.New("mapping is missing a required column")
	ErrAmbiguousAmount = errors.New("amount in and out point at the same column; set use_negative_for_out for signed amounts")
	ErrColumnRange     = errors.New("mapping column is out of range")
)

// ColumnMapping tells the generic parser where each field lives. Column
// indices are zero based; -1 means unset.
type ColumnMapping struct {
	DateColumn        int                   `yaml:"date_column" json:"date_column"`
	DescriptionColumn int                   `yaml:"description_column" json:"description_column"`
	AmountInColumn    int                   `yaml:"amount_in_column" json:"amount_in_column"`
	AmountOutColumn   int                   `yaml:"amount_out_column" json:"amount_out_column"`
	MatchFieldColumns []int                 `yaml:"match_field_columns,omitempty" json:"match_field_columns,omitempty"`
	HasHeaders        bool                  `yaml:"has_headers" json:"has_headers"`
	HeaderRow         int                   `yaml:"header_row,omitempty" json:"header_row,omitempty"`
	DateFormat        normalizer.DateFormat `yaml:"date_format,omitempty" json:"date_format,omitempty"`
	UseNegativeForOut bool                  `yaml:"use_negative_for_out,omitempty" json:"use_negative_for_out,omitempty"`
	DecimalComma      bool                  `yaml:"decimal_comma,omitempty" json:"decimal_comma,omitempty"`
}

// NewColumnMapping returns a mapping with every column unset.
func NewColumnMapping() ColumnMapping {
	return ColumnMapping{
		DateColumn:        -1,
		DescriptionColumn: -1,
		AmountInColumn:    -1,
		AmountOutColumn:   -1,
	}
}

// SignedColumn returns the column holding signed amounts.
func (m ColumnMapping) SignedColumn() int {
	if m.AmountInColumn >= 0 {
		return m.AmountInColumn
	}
	return m.AmountOutColumn
}

// DataStart returns the index of the first data row in a grid.
func (m ColumnMapping) DataStart() int {
	if m.HasHeaders {
		return m.HeaderRow + 1
	}
	return m.HeaderRow
}

// NumberStyle maps the decimal flag onto the normalizer convention.
func (m ColumnMapping) NumberStyle() normalizer.NumberStyle {
	if m.DecimalComma {
		return normalizer.StyleComma
	}
	return normalizer.StyleAuto
}

// Validate checks the mapping against a grid width. A width of 0 skips the
// range checks.
func (m ColumnMapping) Validate(width int) error {
	if m.DateColumn < 0 {
		return fmt.Errorf("%w: date", ErrMissingColumn)
	}
	if m.DescriptionColumn < 0 {
		return fmt.Errorf("%w: description", ErrMissingColumn)
	}
	if m.AmountInColumn < 0 && m.AmountOutColumn < 0 {
		return fmt.Errorf("%w: amount", ErrMissingColumn)
	}
	if m.AmountInColumn >= 0 && m.AmountInColumn == m.AmountOutColumn && !m.UseNegativeForOut {
		return ErrAmbiguousAmount
	}
	if m.UseNegativeForOut && m.AmountInColumn >= 0 && m.AmountOutColumn >= 0 && m.AmountInColumn != m.AmountOutColumn {
		return fmt.Errorf("signed amounts need a single column, got in=%d out=%d", m.AmountInColumn, m.AmountOutColumn)
	}
	if m.DateFormat != "" {
		if _, err := normalizer.ParseFormat(string(m.DateFormat)); err != nil {
			return err
		}
	}
	if m.HeaderRow < 0 {
		return fmt.Errorf("%w: header_row %d", ErrColumnRange, m.HeaderRow)
	}

	if width <= 0 {
		return nil
	}
	cols := map[string]int{
		"date":        m.DateColumn,
		"description": m.DescriptionColumn,
		"amount_in":   m.AmountInColumn,
		"amount_out":  m.AmountOutColumn,
	}
	for name, idx := range cols {
		if idx >= width {
			return fmt.Errorf("%w: %s=%d, file has %d columns", ErrColumnRange, name, idx, width)
		}
	}
	for _, idx := range m.MatchFieldColumns {
		if idx < 0 || idx >= width {
			return fmt.Errorf("%w: match field %d, file has %d columns", ErrColumnRange, idx, width)
		}
	}
	return nil
}
