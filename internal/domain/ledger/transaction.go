// Package ledger holds the canonical transaction model shared by the import
// pipeline, the categorizer and the persisted store.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the stable textual form used for dates in signatures and exports.
const DateLayout = "2006-01-02"

// CanonicalTransaction is a parsed statement row before persistence.
// AmountOut and AmountIn are never negative.
type CanonicalTransaction struct {
	Date           time.Time       `json:"date"`
	Description    string          `json:"description"`
	MatchField     string          `json:"match_field"`
	AmountOut      decimal.Decimal `json:"amount_out"`
	AmountIn       decimal.Decimal `json:"amount_in"`
	SourceFormatID string          `json:"source_format_id"`
}

// NetAmount returns AmountIn - AmountOut.
func (t CanonicalTransaction) NetAmount() decimal.Decimal {
	return t.AmountIn.Sub(t.AmountOut)
}

// Signature returns the duplicate identity of the transaction.
func (t CanonicalTransaction) Signature() Signature {
	return NewSignature(t.Date, t.Description, t.AmountOut, t.AmountIn)
}

// Transaction is a transaction owned by the persisted store.
type Transaction struct {
	CanonicalTransaction
	ID            uuid.UUID  `json:"id"`
	CategoryID    *uuid.UUID `json:"category_id,omitempty"`
	ImportBatchID *uuid.UUID `json:"import_batch_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewTransaction builds a record ready for bulk insert.
func NewTransaction(c CanonicalTransaction, categoryID, batchID *uuid.UUID) Transaction {
	return Transaction{
		CanonicalTransaction: c,
		ID:                   uuid.New(),
		CategoryID:           categoryID,
		ImportBatchID:        batchID,
	}
}

// ImportBatch summarizes one committed import.
type ImportBatch struct {
	ID               uuid.UUID       `json:"id"`
	FileName         string          `json:"file_name"`
	SourceFormat     string          `json:"source_format"`
	TransactionCount int             `json:"transaction_count"`
	TotalDebited     decimal.Decimal `json:"total_debited"`
	StoragePath      string          `json:"storage_path,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Signature is the exact (date, description, amountOut, amountIn) key.
// Descriptions are compared raw, so casing differences are not duplicates.
type Signature string

// NewSignature formats a signature from its parts.
func NewSignature(date time.Time, description string, amountOut, amountIn decimal.Decimal) Signature {
	var b strings.Builder
	b.WriteString(date.Format(DateLayout))
	b.WriteByte('|')
	b.WriteString(description)
	b.WriteByte('|')
	b.WriteString(amountOut.StringFixed(2))
	b.WriteByte('|')
	b.WriteString(amountIn.StringFixed(2))
	return Signature(b.String())
}

// DateRange returns the earliest and latest dates of the given transactions.
// ok is false when the slice is empty.
func DateRange(txns []CanonicalTransaction) (start, end time.Time, ok bool) {
	for i, t := range txns {
		if i == 0 || t.Date.Before(start) {
			start = t.Date
		}
		if i == 0 || t.Date.After(end) {
			end = t.Date
		}
	}
	return start, end, len(txns) > 0
}
