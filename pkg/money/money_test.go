package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewFromDecimal(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		cents    int64
		code     string
	}{
		{"two places", "1234.56", EUR, 123456, EUR},
		{"rounds half up", "0.005", EUR, 1, EUR},
		{"lower case code", "10", "usd", 1000, USD},
		{"no minor units", "1500", JPY, 1500, JPY},
		{"unknown code", "3.20", "XYZ1", 320, EUR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFromDecimal(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.cents, m.m.Amount())
			assert.Equal(t, tt.code, m.m.Currency().Code)
		})
	}
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "$1,234.56", NewFromDecimal(decimal.RequireFromString("1234.56"), USD).Display())
	assert.Equal(t, "£0.99", NewFromDecimal(decimal.RequireFromString("0.99"), GBP).Display())
	assert.Contains(t, NewFromDecimal(decimal.RequireFromString("-12.5"), EUR).Display(), "12.50")

	var nilMoney *Money
	assert.Equal(t, "0.00", nilMoney.Display())
}
