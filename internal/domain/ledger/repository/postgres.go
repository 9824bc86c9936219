package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

const uniqueViolation = "23505"

// querier is implemented by both the pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on db, usually a *pgxpool.Pool.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const categoryColumns = `id, name, keywords, display_order, is_system`

const transactionColumns = `id, date, description, match_field, amount_out, amount_in,
	source_format_id, category_id, import_batch_id, created_at, updated_at`

var copyColumns = []string{
	"id", "date", "description", "match_field", "amount_out", "amount_in",
	"source_format_id", "category_id", "import_batch_id",
}

// ListCategories returns every category in display order.
func (s *PostgresStore) ListCategories(ctx context.Context) ([]categorization.Category, error) {
	return listCategories(ctx, s.db, false)
}

// CreateCategory inserts a category and assigns it the uncategorized
// transactions that only it matches.
func (s *PostgresStore) CreateCategory(ctx context.Context, name string, keywords []string) (*categorization.Category, categorization.Result, error) {
	var created categorization.Category
	var res categorization.Result

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		categories, err := listCategories(ctx, tx, true)
		if err != nil {
			return err
		}
		if categorization.FindByName(categories, name) != nil {
			return fmt.Errorf("%w: %q", categorization.ErrDuplicateName, name)
		}
		keywords = categorization.NormalizeKeywords(keywords)
		if err := categorization.CheckKeywords(categories, uuid.Nil, keywords); err != nil {
			return err
		}

		created = categorization.Category{Name: name, Keywords: keywords}
		err = tx.QueryRow(ctx, `
			INSERT INTO categories (name, keywords, display_order)
			VALUES ($1, $2, (SELECT COALESCE(MAX(display_order), 0) + 1 FROM categories WHERE NOT is_system))
			RETURNING id, display_order
		`, name, keywords).Scan(&created.ID, &created.DisplayOrder)
		if err != nil {
			return mapUnique(err, name)
		}

		refs, err := loadRefs(ctx, tx, `WHERE category_id IS NULL`)
		if err != nil {
			return err
		}
		plan, r := categorization.PlanKeywordChange(created.ID, nil, keywords, append(categories, created), refs)
		res = r
		return applyPlan(ctx, tx, plan)
	})
	if err != nil {
		return nil, categorization.Result{}, err
	}
	return &created, res, nil
}

// RenameCategory renames any category except Uncategorized.
func (s *PostgresStore) RenameCategory(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE categories SET name = $2, updated_at = now()
		WHERE id = $1 AND NOT (is_system AND name = $3)
	`, id, name, categorization.Uncategorized)
	if err != nil {
		return mapUnique(err, name)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteCategory removes a non-system category. Its transactions are first
// re-evaluated as if its keyword list had been emptied.
func (s *PostgresStore) DeleteCategory(ctx context.Context, id uuid.UUID) (categorization.Result, error) {
	var res categorization.Result
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		categories, err := listCategories(ctx, tx, true)
		if err != nil {
			return err
		}
		target := categorization.FindByID(categories, id)
		if target == nil {
			return fmt.Errorf("%w: %s", categorization.ErrCategoryNotFound, id)
		}
		if target.IsSystem {
			return fmt.Errorf("%w: %s", categorization.ErrSystemCategory, target.Name)
		}
		old := target.Keywords
		target.Keywords = nil

		refs, err := loadRefs(ctx, tx, `WHERE category_id = $1`, id)
		if err != nil {
			return err
		}
		plan, r := categorization.PlanKeywordChange(id, old, nil, categories, refs)
		res = r
		if err := applyPlan(ctx, tx, plan); err != nil {
			return err
		}
		// Rows left in the category fall back to nil through the foreign key.
		if _, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
	return res, err
}

// UpdateCategoryKeywords replaces the keywords of a category and applies
// the resulting reassignments atomically. Category rows are locked for the
// duration so the ownership check and the update see the same state.
func (s *PostgresStore) UpdateCategoryKeywords(ctx context.Context, id uuid.UUID, keywords []string) (categorization.Result, error) {
	var res categorization.Result
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		categories, err := listCategories(ctx, tx, true)
		if err != nil {
			return err
		}
		target := categorization.FindByID(categories, id)
		if target == nil {
			return fmt.Errorf("%w: %s", categorization.ErrCategoryNotFound, id)
		}
		normalized, err := categorization.PrepareKeywordUpdate(categories, *target, keywords)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE categories SET keywords = $2, updated_at = now() WHERE id = $1
		`, id, normalized); err != nil {
			return fmt.Errorf("failed to update keywords: %w", err)
		}

		old := target.Keywords
		if categorization.KeywordSetsEqual(old, normalized) {
			return nil
		}
		target.Keywords = normalized

		refs, err := loadRefs(ctx, tx, `WHERE category_id IS NULL OR category_id = $1`, id)
		if err != nil {
			return err
		}
		plan, r := categorization.PlanKeywordChange(id, old, normalized, categories, refs)
		res = r
		return applyPlan(ctx, tx, plan)
	})
	return res, err
}

// RecategorizeTransactions re-evaluates persisted transactions against the
// current keyword sets.
func (s *PostgresStore) RecategorizeTransactions(ctx context.Context, mode categorization.Mode) (categorization.Result, error) {
	var res categorization.Result
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		categories, err := listCategories(ctx, tx, true)
		if err != nil {
			return err
		}
		where := ""
		if mode == categorization.ModeUncategorized {
			where = `WHERE category_id IS NULL`
		}
		refs, err := loadRefs(ctx, tx, where)
		if err != nil {
			return err
		}
		plan, r := categorization.PlanBulk(mode, categories, refs)
		res = r
		return applyPlan(ctx, tx, plan)
	})
	return res, err
}

// QueryTransactionsByDateRange returns transactions dated within [start, end].
func (s *PostgresStore) QueryTransactionsByDateRange(ctx context.Context, start, end time.Time) ([]ledger.Transaction, error) {
	return queryTransactions(ctx, s.db, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE date BETWEEN $1 AND $2
		ORDER BY date, created_at
	`, start, end)
}

// ListTransactions returns transactions matching filter, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, filter TransactionFilter) ([]ledger.Transaction, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !filter.Start.IsZero() {
		add("date >= $%d", filter.Start)
	}
	if !filter.End.IsZero() {
		add("date <= $%d", filter.End)
	}
	if filter.CategoryID != nil {
		add("category_id = $%d", *filter.CategoryID)
	}
	if filter.BatchID != nil {
		add("import_batch_id = $%d", *filter.BatchID)
	}
	if filter.Uncategorized {
		conds = append(conds, "category_id IS NULL")
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY date DESC, created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return queryTransactions(ctx, s.db, query, args...)
}

// BulkInsertTransactions writes records with COPY. Unless
// opts.SkipDuplicateCheck is set, records whose signature already exists in
// the ledger are skipped; rows repeated within records are all kept.
func (s *PostgresStore) BulkInsertTransactions(ctx context.Context, records []ledger.Transaction, opts InsertOptions) (InsertResult, error) {
	res := InsertResult{Debited: decimal.Zero}
	if len(records) == 0 {
		return res, nil
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		toInsert := records
		if !opts.SkipDuplicateCheck {
			canonical := make([]ledger.CanonicalTransaction, len(records))
			for i, r := range records {
				canonical[i] = r.CanonicalTransaction
			}
			start, end, _ := ledger.DateRange(canonical)
			existing, err := queryTransactions(ctx, tx, `
				SELECT `+transactionColumns+` FROM transactions
				WHERE date BETWEEN $1 AND $2
			`, start, end)
			if err != nil {
				return err
			}
			known := make(map[ledger.Signature]struct{}, len(existing))
			for _, e := range existing {
				known[e.Signature()] = struct{}{}
			}
			toInsert = make([]ledger.Transaction, 0, len(records))
			for _, r := range records {
				if _, dup := known[r.Signature()]; dup {
					res.Skipped++
					continue
				}
				toInsert = append(toInsert, r)
			}
		}
		if len(toInsert) == 0 {
			return nil
		}

		rows := make([][]any, len(toInsert))
		for i, r := range toInsert {
			id := r.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			rows[i] = []any{
				id, r.Date, r.Description, r.MatchField,
				numeric(r.AmountOut), numeric(r.AmountIn),
				r.SourceFormatID, r.CategoryID, r.ImportBatchID,
			}
			res.Debited = res.Debited.Add(r.AmountOut)
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"transactions"}, copyColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy transactions: %w", err)
		}
		res.Added = int(n)
		return nil
	})
	if err != nil {
		return InsertResult{}, err
	}
	return res, nil
}

// UpdateTransactionCategory sets or clears the category of one transaction.
func (s *PostgresStore) UpdateTransactionCategory(ctx context.Context, id uuid.UUID, categoryID *uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE transactions SET category_id = $2, updated_at = now() WHERE id = $1
	`, id, categoryID)
	if err != nil {
		return fmt.Errorf("failed to update transaction category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordImportBatch stores the summary of one commit.
func (s *PostgresStore) RecordImportBatch(ctx context.Context, batch ledger.ImportBatch) (uuid.UUID, error) {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	var id uuid.UUID
	err := s.db.QueryRow(ctx, `
		INSERT INTO import_batches (id, file_name, source_format, transaction_count, total_debited, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, batch.ID, batch.FileName, batch.SourceFormat, batch.TransactionCount,
		numeric(batch.TotalDebited), nullString(batch.StoragePath)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record import batch: %w", err)
	}
	return id, nil
}

// ListImportBatches returns the most recent batches first.
func (s *PostgresStore) ListImportBatches(ctx context.Context, limit int) ([]ledger.ImportBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, file_name, source_format, transaction_count, total_debited, storage_path, created_at
		FROM import_batches
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import batches: %w", err)
	}
	defer rows.Close()

	var batches []ledger.ImportBatch
	for rows.Next() {
		var (
			b       ledger.ImportBatch
			debited pgtype.Numeric
			path    *string
		)
		if err := rows.Scan(&b.ID, &b.FileName, &b.SourceFormat, &b.TransactionCount, &debited, &path, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.TotalDebited = fromNumeric(debited)
		if path != nil {
			b.StoragePath = *path
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// GetMapping returns the saved mapping for a header fingerprint.
func (s *PostgresStore) GetMapping(ctx context.Context, fingerprint string) (*SavedMapping, error) {
	var (
		m   SavedMapping
		raw []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT fingerprint, name, mapping, created_at, updated_at
		FROM column_mappings WHERE fingerprint = $1
	`, fingerprint).Scan(&m.Fingerprint, &m.Name, &raw, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mapping %s: %w", fingerprint, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}
	if err := json.Unmarshal(raw, &m.Mapping); err != nil {
		return nil, fmt.Errorf("failed to decode mapping %s: %w", fingerprint, err)
	}
	return &m, nil
}

// SaveMapping creates or replaces the mapping for a fingerprint.
func (s *PostgresStore) SaveMapping(ctx context.Context, m SavedMapping) error {
	raw, err := json.Marshal(m.Mapping)
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO column_mappings (fingerprint, name, mapping)
		VALUES ($1, $2, $3)
		ON CONFLICT (fingerprint) DO UPDATE SET
			name = EXCLUDED.name,
			mapping = EXCLUDED.mapping,
			updated_at = now()
	`, m.Fingerprint, m.Name, raw)
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func listCategories(ctx context.Context, q querier, lock bool) ([]categorization.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories ORDER BY display_order, name`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []categorization.Category
	for rows.Next() {
		var c categorization.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Keywords, &c.DisplayOrder, &c.IsSystem); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func loadRefs(ctx context.Context, q querier, where string, args ...any) ([]categorization.TransactionRef, error) {
	rows, err := q.Query(ctx, `SELECT id, match_field, category_id FROM transactions `+where+` ORDER BY date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	defer rows.Close()

	var refs []categorization.TransactionRef
	for rows.Next() {
		var r categorization.TransactionRef
		if err := rows.Scan(&r.ID, &r.MatchField, &r.CategoryID); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// applyPlan writes reassignments with one UPDATE per destination.
func applyPlan(ctx context.Context, q querier, plan []categorization.Reassignment) error {
	if len(plan) == 0 {
		return nil
	}
	type group struct {
		to  *uuid.UUID
		ids []uuid.UUID
	}
	var groups []*group
	index := make(map[uuid.UUID]*group)
	var toNil *group
	for _, r := range plan {
		var g *group
		if r.To == nil {
			if toNil == nil {
				toNil = &group{}
				groups = append(groups, toNil)
			}
			g = toNil
		} else if g = index[*r.To]; g == nil {
			g = &group{to: r.To}
			index[*r.To] = g
			groups = append(groups, g)
		}
		g.ids = append(g.ids, r.TransactionID)
	}

	for _, g := range groups {
		if _, err := q.Exec(ctx, `
			UPDATE transactions SET category_id = $1, updated_at = now() WHERE id = ANY($2)
		`, g.to, g.ids); err != nil {
			return fmt.Errorf("failed to reassign transactions: %w", err)
		}
	}
	return nil
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		var (
			t       ledger.Transaction
			out, in pgtype.Numeric
		)
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &t.MatchField, &out, &in,
			&t.SourceFormatID, &t.CategoryID, &t.ImportBatchID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.AmountOut, t.AmountIn = fromNumeric(out), fromNumeric(in)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mapUnique(err error, name string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %q", categorization.ErrDuplicateName, name)
	}
	return err
}
