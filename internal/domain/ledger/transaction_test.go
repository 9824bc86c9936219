package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSignature(t *testing.T) {
	t.Run("stable textual form", func(t *testing.T) {
		sig := NewSignature(day(2024, 1, 5), "STARBUCKS #123", decimal.RequireFromString("4.5"), decimal.Zero)
		assert.Equal(t, Signature("2024-01-05|STARBUCKS #123|4.50|0.00"), sig)
	})

	t.Run("description casing is significant", func(t *testing.T) {
		a := CanonicalTransaction{Date: day(2024, 3, 1), Description: "Coffee Shop", AmountOut: decimal.NewFromInt(3)}
		b := CanonicalTransaction{Date: day(2024, 3, 1), Description: "COFFEE SHOP", AmountOut: decimal.NewFromInt(3)}
		assert.NotEqual(t, a.Signature(), b.Signature())
	})

	t.Run("equal amounts with different scale match", func(t *testing.T) {
		a := NewSignature(day(2024, 3, 1), "X", decimal.RequireFromString("10"), decimal.Zero)
		b := NewSignature(day(2024, 3, 1), "X", decimal.RequireFromString("10.00"), decimal.Zero)
		assert.Equal(t, a, b)
	})

	t.Run("time of day is ignored", func(t *testing.T) {
		a := NewSignature(time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC), "X", decimal.Zero, decimal.NewFromInt(1))
		b := NewSignature(day(2024, 3, 1), "X", decimal.Zero, decimal.NewFromInt(1))
		assert.Equal(t, a, b)
	})
}

func TestNetAmount(t *testing.T) {
	tx := CanonicalTransaction{AmountOut: decimal.RequireFromString("4.50"), AmountIn: decimal.RequireFromString("2000")}
	assert.True(t, tx.NetAmount().Equal(decimal.RequireFromString("1995.50")))
}

func TestDateRange(t *testing.T) {
	_, _, ok := DateRange(nil)
	assert.False(t, ok)

	start, end, ok := DateRange([]CanonicalTransaction{
		{Date: day(2024, 2, 10)},
		{Date: day(2024, 1, 3)},
		{Date: day(2024, 3, 9)},
	})
	require.True(t, ok)
	assert.Equal(t, day(2024, 1, 3), start)
	assert.Equal(t, day(2024, 3, 9), end)
}
