// Package repository persists the ledger: categories, transactions, import
// batches and saved column mappings.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InsertOptions controls BulkInsertTransactions.
type InsertOptions struct {
	// SkipDuplicateCheck inserts every record, even when its signature is
	// already persisted.
	SkipDuplicateCheck bool
}

// InsertResult reports a bulk insert.
type InsertResult struct {
	Added   int             `json:"added"`
	Skipped int             `json:"skipped"`
	Debited decimal.Decimal `json:"debited"`
}

// TransactionFilter narrows ListTransactions. Zero values mean no filter.
type TransactionFilter struct {
	Start         time.Time
	End           time.Time
	CategoryID    *uuid.UUID
	Uncategorized bool
	BatchID       *uuid.UUID
	Limit         int
}

// SavedMapping is a column mapping remembered for a header layout.
type SavedMapping struct {
	Fingerprint string                `json:"fingerprint"`
	Name        string                `json:"name"`
	Mapping     sniffer.ColumnMapping `json:"mapping"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Store is the persisted ledger. Keyword changes and every reassignment
// they cause are applied in one database transaction.
type Store interface {
	categorization.Store

	QueryTransactionsByDateRange(ctx context.Context, start, end time.Time) ([]ledger.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]ledger.Transaction, error)
	BulkInsertTransactions(ctx context.Context, records []ledger.Transaction, opts InsertOptions) (InsertResult, error)
	UpdateTransactionCategory(ctx context.Context, id uuid.UUID, categoryID *uuid.UUID) error

	RecordImportBatch(ctx context.Context, batch ledger.ImportBatch) (uuid.UUID, error)
	ListImportBatches(ctx context.Context, limit int) ([]ledger.ImportBatch, error)

	GetMapping(ctx context.Context, fingerprint string) (*SavedMapping, error)
	SaveMapping(ctx context.Context, m SavedMapping) error
}
