package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
)

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGeneric_Parse(t *testing.T) {
	t.Run("separate columns with a bad row", func(t *testing.T) {
		g := tabular.NewGrid("statement.csv", [][]string{
			{"2024-01-05", "STARBUCKS #123", "4.50", "0"},
			{"2024-01-06", "PAYROLL DEPOSIT", "0", "2000.00"},
			{"bad-date", "X", "1", "0"},
		})
		m := sniffer.NewColumnMapping()
		m.DateColumn, m.DescriptionColumn, m.AmountOutColumn, m.AmountInColumn = 0, 1, 2, 3

		result, err := Run(NewGeneric(m), g)
		require.NoError(t, err)

		assert.Equal(t, 3, result.TotalRows)
		assert.Equal(t, 2, result.ParsedRows)
		require.Len(t, result.Transactions, 2)
		require.Len(t, result.Errors, 1)

		assert.Equal(t, 3, result.Errors[0].Row)
		assert.Equal(t, "date", result.Errors[0].Column)
		assert.Contains(t, result.Errors[0].Message, "bad-date")

		tx := result.Transactions[0]
		assert.Equal(t, day(2024, 1, 5), tx.Date)
		assert.Equal(t, "STARBUCKS #123", tx.Description)
		assertAmount(t, "4.50", tx.AmountOut)
		assertAmount(t, "0", tx.AmountIn)
		assert.Equal(t, GenericID, tx.SourceFormatID)

		assertAmount(t, "0", result.Transactions[1].AmountOut)
		assertAmount(t, "2000", result.Transactions[1].AmountIn)
	})

	t.Run("signed column with decimal comma", func(t *testing.T) {
		g := tabular.NewGrid("extrato.csv", [][]string{
			{"Data", "Descritivo", "Valor"},
			{"15/01/2024", "Padaria", "-3,20"},
			{"16/01/2024", "Salário", "1.250,00"},
		})
		m := sniffer.NewColumnMapping()
		m.DateColumn, m.DescriptionColumn, m.AmountOutColumn = 0, 1, 2
		m.UseNegativeForOut = true
		m.HasHeaders = true
		m.DateFormat = normalizer.DateDMY
		m.DecimalComma = true

		result, err := Run(NewGeneric(m), g)
		require.NoError(t, err)
		require.Len(t, result.Transactions, 2)
		assert.Empty(t, result.Errors)

		assert.Equal(t, day(2024, 1, 15), result.Transactions[0].Date)
		assertAmount(t, "3.20", result.Transactions[0].AmountOut)
		assertAmount(t, "0", result.Transactions[0].AmountIn)
		assertAmount(t, "1250", result.Transactions[1].AmountIn)
	})

	t.Run("match field columns", func(t *testing.T) {
		g := tabular.NewGrid("x.csv", [][]string{
			{"2024-02-01", "Card payment", "10.00", "Lidl Lisboa"},
		})
		m := sniffer.NewColumnMapping()
		m.DateColumn, m.DescriptionColumn, m.AmountOutColumn = 0, 1, 2
		m.MatchFieldColumns = []int{3, 1}

		result := NewGeneric(m).Parse(g)
		require.Len(t, result.Transactions, 1)
		assert.Equal(t, "Lidl Lisboa Card payment", result.Transactions[0].MatchField)
		assert.Equal(t, "Card payment", result.Transactions[0].Description)
	})

	t.Run("spreadsheet serial dates", func(t *testing.T) {
		g := tabular.NewGrid("x.xlsx", [][]string{
			{"45306", "Rent", "750"},
		})
		m := sniffer.NewColumnMapping()
		m.DateColumn, m.DescriptionColumn, m.AmountOutColumn = 0, 1, 2
		m.DateFormat = normalizer.DateISO

		result := NewGeneric(m).Parse(g)
		require.Len(t, result.Transactions, 1)
		assert.Equal(t, day(2024, 1, 15), result.Transactions[0].Date)
	})

	t.Run("missing amounts and descriptions are row errors", func(t *testing.T) {
		g := tabular.NewGrid("x.csv", [][]string{
			{"2024-01-05", "Coffee", "", ""},
			{"2024-01-06", "", "1", ""},
			{"2024-01-07", "Tea", "abc", ""},
			{"2024-01-08", "Cake", "2.00", ""},
		})
		m := sniffer.NewColumnMapping()
		m.DateColumn, m.DescriptionColumn, m.AmountOutColumn, m.AmountInColumn = 0, 1, 2, 3

		result := NewGeneric(m).Parse(g)
		require.Len(t, result.Errors, 3)
		assert.Equal(t, "amount", result.Errors[0].Column)
		assert.Equal(t, "description", result.Errors[1].Column)
		assert.Equal(t, "amount_out", result.Errors[2].Column)
		assert.Equal(t, "abc", result.Errors[2].RawData)
		assert.Equal(t, 1, result.ParsedRows)
	})

	t.Run("invalid mapping", func(t *testing.T) {
		g := tabular.NewGrid("x.csv", [][]string{{"2024-01-05", "Coffee", "1"}})
		m := sniffer.NewColumnMapping()
		m.DateColumn, m.DescriptionColumn, m.AmountOutColumn = 0, 1, 7

		v := NewGeneric(m).Validate(g)
		assert.False(t, v.IsValid)

		_, err := Run(NewGeneric(m), g)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, GenericID, verr.FormatID)
	})
}

func TestGeneric_DetectNeverClaims(t *testing.T) {
	g := tabular.NewGrid("x.csv", [][]string{{"Date", "Description", "Amount"}})
	d := NewGeneric(sniffer.NewColumnMapping()).Detect(g)
	assert.False(t, d.Positive())
}

func chaseGrid(rows ...[]string) *tabular.Grid {
	records := [][]string{chaseHeaders}
	return tabular.NewGrid("Chase1234_Activity_20240131.CSV", append(records, rows...))
}

func TestChase(t *testing.T) {
	g := chaseGrid(
		[]string{"DEBIT", "01/15/2024", "STARBUCKS STORE 123", "-4.50", "DEBIT_CARD", "995.50", ""},
		[]string{"CREDIT", "01/16/2024", "ACME PAYROLL PPD ID: 1234", "2000.00", "ACH_CREDIT", "2995.50", ""},
	)

	t.Run("detects the exact header as high", func(t *testing.T) {
		d := Chase{}.Detect(g)
		assert.Equal(t, ChaseID, d.FormatID)
		assert.Equal(t, ConfidenceHigh, d.Confidence)
	})

	t.Run("parses signed amounts", func(t *testing.T) {
		result, err := Run(Chase{}, g)
		require.NoError(t, err)
		require.Len(t, result.Transactions, 2)

		out := result.Transactions[0]
		assert.Equal(t, day(2024, 1, 15), out.Date)
		assertAmount(t, "4.50", out.AmountOut)
		assertAmount(t, "0", out.AmountIn)
		assert.Equal(t, ChaseID, out.SourceFormatID)

		in := result.Transactions[1]
		assertAmount(t, "0", in.AmountOut)
		assertAmount(t, "2000", in.AmountIn)
	})

	t.Run("extra columns lower the confidence", func(t *testing.T) {
		g := tabular.NewGrid("x.csv", [][]string{
			{"Details", "Posting Date", "Description", "Amount", "Type", "Balance", "Check or Slip #", "Memo"},
		})
		assert.Equal(t, ConfidenceMedium, Chase{}.Detect(g).Confidence)
	})

	t.Run("partial header is low", func(t *testing.T) {
		g := tabular.NewGrid("x.csv", [][]string{{"Posting Date", "Description", "Memo"}})
		assert.Equal(t, ConfidenceLow, Chase{}.Detect(g).Confidence)
	})

	t.Run("no key column is none", func(t *testing.T) {
		g := tabular.NewGrid("x.csv", [][]string{{"Date", "Description", "Amount"}})
		d := Chase{}.Detect(g)
		assert.Equal(t, ConfidenceNone, d.Confidence)
		assert.NotEmpty(t, d.Reason)
	})

	t.Run("mostly bad rows fail validation", func(t *testing.T) {
		g := chaseGrid(
			[]string{"DEBIT", "31/01/2024", "A", "-1.00", "", "", ""},
			[]string{"DEBIT", "not a date", "B", "-1.00", "", "", ""},
			[]string{"DEBIT", "01/30/2024", "C", "-1.00", "", "", ""},
		)
		v := Chase{}.Validate(g)
		assert.False(t, v.IsValid)

		_, err := Run(Chase{}, g)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, ChaseID, verr.FormatID)
	})

	t.Run("a minority of bad rows are warnings", func(t *testing.T) {
		g := chaseGrid(
			[]string{"DEBIT", "01/15/2024", "A", "-1.00", "", "", ""},
			[]string{"DEBIT", "01/16/2024", "B", "-1.00", "", "", ""},
			[]string{"DEBIT", "bad", "C", "-1.00", "", "", ""},
		)
		v := Chase{}.Validate(g)
		assert.True(t, v.IsValid)
		assert.Len(t, v.Warnings, 1)
	})

	t.Run("header only has no data rows", func(t *testing.T) {
		v := Chase{}.Validate(chaseGrid())
		assert.False(t, v.IsValid)
		assert.Contains(t, v.Errors, "no data rows")
	})
}

func TestRevolut(t *testing.T) {
	g := tabular.NewGrid("account-statement_2024-03-01_2024-03-31_en_abc123.csv", [][]string{
		revolutHeaders,
		{"CARD_PAYMENT", "Current", "2024-03-01 10:00:00", "2024-03-02 09:15:00", "Pingo Doce", "-12.34", "0.50", "EUR", "COMPLETED", "100.00"},
		{"TOPUP", "Current", "2024-03-03 08:00:00", "2024-03-03 08:00:01", "Top-Up by *1234", "200.00", "0.00", "EUR", "COMPLETED", "300.00"},
		{"CARD_PAYMENT", "Current", "2024-03-04 12:00:00", "", "Amazon", "-20.00", "0.00", "EUR", "PENDING", "300.00"},
	})

	d := Revolut{}.Detect(g)
	assert.Equal(t, ConfidenceHigh, d.Confidence)

	result, err := Run(Revolut{}, g)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, 2, result.ParsedRows)
	assert.Equal(t, 1, result.SkippedRows)
	assert.Empty(t, result.Errors)

	card := result.Transactions[0]
	assert.Equal(t, day(2024, 3, 2), card.Date)
	assertAmount(t, "12.84", card.AmountOut)
	assertAmount(t, "0", card.AmountIn)
	assert.Equal(t, "CARD_PAYMENT Pingo Doce", card.MatchField)
	assert.Equal(t, "Pingo Doce", card.Description)

	topup := result.Transactions[1]
	assertAmount(t, "200", topup.AmountIn)
	assertAmount(t, "0", topup.AmountOut)
}

func cgdGrid(rows ...[]string) *tabular.Grid {
	records := [][]string{
		{"Consultar saldos e movimentos à ordem"},
		{"Conta", "0123456789"},
		{},
		cgdHeaders,
	}
	return tabular.NewGrid("cgd_movimentos.xls", append(records, rows...))
}

func TestCGD(t *testing.T) {
	g := cgdGrid(
		[]string{"02-01-2024", "02-01-2024", "COMPRA CONTINENTE", "45,60", "", "1.234,56", "1.234,56", "Compras"},
		[]string{"03-01-2024", "03-01-2024", "TRF DE JOAO", "", "1.500,00", "2.734,56", "2.734,56", ""},
		[]string{"", "", "Saldo contabilístico", "", "", "2.734,56", "", ""},
	)

	t.Run("finds the header after the preamble", func(t *testing.T) {
		d := CGD{}.Detect(g)
		assert.Equal(t, CGDID, d.FormatID)
		assert.Equal(t, ConfidenceHigh, d.Confidence)
	})

	t.Run("parses debit and credit with decimal comma", func(t *testing.T) {
		result, err := Run(CGD{}, g)
		require.NoError(t, err)

		assert.Equal(t, 3, result.TotalRows)
		assert.Equal(t, 2, result.ParsedRows)
		assert.Equal(t, 1, result.SkippedRows)
		require.Len(t, result.Transactions, 2)

		buy := result.Transactions[0]
		assert.Equal(t, day(2024, 1, 2), buy.Date)
		assertAmount(t, "45.60", buy.AmountOut)
		assertAmount(t, "0", buy.AmountIn)

		transfer := result.Transactions[1]
		assertAmount(t, "1500", transfer.AmountIn)
		assertAmount(t, "0", transfer.AmountOut)
	})

	t.Run("older signed layout", func(t *testing.T) {
		g := tabular.NewGrid("cgd.csv", [][]string{
			{"Data mov.", "Descrição", "Montante"},
			{"05-02-2024", "PAGAMENTO EDP", "-61,20"},
		})
		assert.Equal(t, ConfidenceHigh, CGD{}.Detect(g).Confidence)

		result, err := Run(CGD{}, g)
		require.NoError(t, err)
		require.Len(t, result.Transactions, 1)
		assertAmount(t, "61.20", result.Transactions[0].AmountOut)
	})

	t.Run("rows report their file line", func(t *testing.T) {
		g := cgdGrid(
			[]string{"02-01-2024", "02-01-2024", "A", "1,00", "", "", "", ""},
			[]string{"02-01-2024", "02-01-2024", "B", "x", "", "", "", ""},
			[]string{"02-01-2024", "02-01-2024", "C", "2,00", "", "", "", ""},
		)
		result := CGD{}.Parse(g)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 6, result.Errors[0].Row)
		assert.Equal(t, "debit", result.Errors[0].Column)
	})
}

func TestParseError_Error(t *testing.T) {
	e := ParseError{Row: 4, Column: "date", Message: `invalid date "x"`}
	assert.Equal(t, `row 4, column date: invalid date "x"`, e.Error())
}

func TestConfidence_String(t *testing.T) {
	assert.Equal(t, "high", ConfidenceHigh.String())
	assert.Equal(t, "medium", ConfidenceMedium.String())
	assert.Equal(t, "low", ConfidenceLow.String())
	assert.Equal(t, "none", ConfidenceNone.String())
}
