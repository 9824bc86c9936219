// Package money formats ledger amounts for display. Amounts are stored as
// decimals and converted to minor units here so totals add up exactly.
package money

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	EUR = "EUR"
	USD = "USD"
	GBP = "GBP"
	JPY = "JPY" // no minor units
)

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// NewFromDecimal converts a decimal amount, rounding half away from zero to
// the currency's minor unit. Unknown currency codes fall back to EUR.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	currency := money.GetCurrency(code)
	if currency == nil {
		code = EUR
		currency = money.GetCurrency(EUR)
	}
	cents := amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
	return &Money{m: money.New(cents, code)}
}

// Display returns a formatted string for display (e.g., "€1,234.56")
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.m.Display()
}
