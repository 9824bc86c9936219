package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/session"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger/repository"
	"github.com/FACorreiaa/statement-ledger/pkg/metrics"
)

// mockStore keeps the ledger in memory.
type mockStore struct {
	transactions []ledger.Transaction
	batches      []ledger.ImportBatch
	mappings     map[string]repository.SavedMapping
	inserts      []repository.InsertOptions
	insertErr    error
	batchErr     error
}

func (m *mockStore) QueryTransactionsByDateRange(_ context.Context, start, end time.Time) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	for _, tx := range m.transactions {
		if !tx.Date.Before(start) && !tx.Date.After(end) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *mockStore) BulkInsertTransactions(_ context.Context, records []ledger.Transaction, opts repository.InsertOptions) (repository.InsertResult, error) {
	m.inserts = append(m.inserts, opts)
	res := repository.InsertResult{Debited: decimal.Zero}
	if m.insertErr != nil {
		return res, m.insertErr
	}
	known := make(map[ledger.Signature]struct{})
	for _, tx := range m.transactions {
		known[tx.Signature()] = struct{}{}
	}
	for _, r := range records {
		if _, dup := known[r.Signature()]; dup && !opts.SkipDuplicateCheck {
			res.Skipped++
			continue
		}
		m.transactions = append(m.transactions, r)
		res.Added++
		res.Debited = res.Debited.Add(r.AmountOut)
	}
	return res, nil
}

func (m *mockStore) RecordImportBatch(_ context.Context, batch ledger.ImportBatch) (uuid.UUID, error) {
	if m.batchErr != nil {
		return uuid.Nil, m.batchErr
	}
	m.batches = append(m.batches, batch)
	return batch.ID, nil
}

func (m *mockStore) GetMapping(_ context.Context, fingerprint string) (*repository.SavedMapping, error) {
	saved, ok := m.mappings[fingerprint]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &saved, nil
}

func (m *mockStore) SaveMapping(_ context.Context, saved repository.SavedMapping) error {
	if m.mappings == nil {
		m.mappings = make(map[string]repository.SavedMapping)
	}
	m.mappings[saved.Fingerprint] = saved
	return nil
}

// mockCategories is an in-memory category service.
type mockCategories struct {
	categories []categorization.Category
}

func (m *mockCategories) ListCategories(context.Context) ([]categorization.Category, error) {
	out := make([]categorization.Category, len(m.categories))
	copy(out, m.categories)
	return out, nil
}

func (m *mockCategories) AddKeyword(_ context.Context, id uuid.UUID, keyword string) (categorization.Result, error) {
	target := categorization.FindByID(m.categories, id)
	if target == nil {
		return categorization.Result{}, categorization.ErrCategoryNotFound
	}
	keywords, err := categorization.AppendKeyword(m.categories, *target, keyword)
	if err != nil {
		return categorization.Result{}, err
	}
	target.Keywords = keywords
	return categorization.Result{}, nil
}

func (m *mockCategories) CreateCategory(_ context.Context, name string, keywords []string) (*categorization.Category, categorization.Result, error) {
	c := categorization.Category{ID: uuid.New(), Name: name, Keywords: keywords, DisplayOrder: len(m.categories) + 1}
	m.categories = append(m.categories, c)
	return &c, categorization.Result{}, nil
}

type mockArchive struct {
	files map[uuid.UUID]string
}

func (a *mockArchive) Archive(_ context.Context, batchID uuid.UUID, fileName string, data []byte) (string, error) {
	if a.files == nil {
		a.files = make(map[uuid.UUID]string)
	}
	a.files[batchID] = string(data)
	return "archive/" + batchID.String() + "/" + fileName, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chaseCSV(rows ...string) []byte {
	lines := append([]string{"Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #"}, rows...)
	return []byte(strings.Join(lines, "\n") + "\n")
}

func persisted(day int, desc, out string) ledger.Transaction {
	return ledger.NewTransaction(ledger.CanonicalTransaction{
		Date:        time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Description: desc,
		MatchField:  desc,
		AmountOut:   decimal.RequireFromString(out),
		AmountIn:    decimal.Zero,
	}, nil, nil)
}

func newService(store *mockStore, cats *mockCategories) *ImportService {
	return NewImportService(store, cats, parser.DefaultRegistry(), testLogger())
}

func TestImportService_CommitSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{transactions: []ledger.Transaction{
		persisted(16, "LANDLORD", "2.00"),
		persisted(18, "SHELL OIL", "4.00"),
	}}
	m := metrics.New(prometheus.NewRegistry())
	svc := newService(store, &mockCategories{}).WithMetrics(m)

	data := chaseCSV(
		"DEBIT,01/15/2024,CORNER SHOP,-1.00,DEBIT_CARD,,",
		"DEBIT,01/16/2024,LANDLORD,-2.00,ACH_DEBIT,,",
		"DEBIT,01/17/2024,BAKERY,-3.00,DEBIT_CARD,,",
		"DEBIT,01/18/2024,SHELL OIL,-4.00,DEBIT_CARD,,",
		"DEBIT,01/19/2024,PHARMACY,-5.00,DEBIT_CARD,,",
	)
	sess, err := svc.StartSession(ctx, "Chase1234_Activity.CSV", data, ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, parser.ChaseID, sess.SourceFormat)

	sum := sess.Summary()
	assert.Equal(t, 5, sum.Total)
	assert.Equal(t, 2, sum.Duplicates)
	assert.Equal(t, 3, sum.ToImport)

	res, err := svc.Commit(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, 2, res.Skipped)
	assert.True(t, decimal.RequireFromString("9").Equal(res.TotalDebited))

	require.Len(t, store.batches, 1)
	batch := store.batches[0]
	assert.Equal(t, res.BatchID, batch.ID)
	assert.Equal(t, "Chase1234_Activity.CSV", batch.FileName)
	assert.Equal(t, parser.ChaseID, batch.SourceFormat)
	assert.Equal(t, 3, batch.TransactionCount)

	assert.Equal(t, []repository.InsertOptions{{}, {SkipDuplicateCheck: true}}, store.inserts)
	assert.Len(t, store.transactions, 5)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TransactionsCommitted.WithLabelValues("added")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DuplicatesDetected))

	_, err = svc.Session(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestImportService_ExplicitDuplicateBypassesCheck(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{transactions: []ledger.Transaction{persisted(16, "LANDLORD", "2.00")}}
	svc := newService(store, &mockCategories{})

	sess, err := svc.StartSession(ctx, "chase.csv", chaseCSV(
		"DEBIT,01/15/2024,CORNER SHOP,-1.00,DEBIT_CARD,,",
		"DEBIT,01/16/2024,LANDLORD,-2.00,ACH_DEBIT,,",
	), ParseOptions{})
	require.NoError(t, err)
	require.NoError(t, sess.SetDuplicateDecision(1, true))

	res, err := svc.Commit(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Zero(t, res.Skipped)
	assert.Len(t, store.transactions, 3)
}

func TestImportService_ConflictBlocksCommit(t *testing.T) {
	ctx := context.Background()
	coffee := categorization.Category{ID: uuid.New(), Name: "Coffee", Keywords: []string{"STARBUCKS"}, DisplayOrder: 1}
	retail := categorization.Category{ID: uuid.New(), Name: "Retail", Keywords: []string{"AMAZON"}, DisplayOrder: 2}
	store := &mockStore{}
	svc := newService(store, &mockCategories{categories: []categorization.Category{coffee, retail}})

	sess, err := svc.StartSession(ctx, "chase.csv", chaseCSV(
		"DEBIT,01/15/2024,AMAZON STARBUCKS GIFT CARD,-25.00,DEBIT_CARD,,",
	), ParseOptions{})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrBlocked)
	assert.Empty(t, store.batches)

	require.NoError(t, sess.ResolveConflict(0, retail.ID))
	_, err = svc.Commit(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, store.transactions, 1)
	assert.Equal(t, retail.ID, *store.transactions[0].CategoryID)
}

func TestImportService_AddKeywordMarksSessionsDirty(t *testing.T) {
	ctx := context.Background()
	groceries := categorization.Category{ID: uuid.New(), Name: "Groceries", DisplayOrder: 1}
	cats := &mockCategories{categories: []categorization.Category{groceries}}
	store := &mockStore{}
	svc := newService(store, cats)

	sess, err := svc.StartSession(ctx, "chase.csv", chaseCSV(
		"DEBIT,01/15/2024,PINGO DOCE LISBOA,-30.00,DEBIT_CARD,,",
	), ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.Summary().Uncategorized)

	_, err = svc.AddKeyword(ctx, groceries.ID, "PINGO DOCE")
	require.NoError(t, err)
	assert.True(t, sess.Dirty())

	_, err = svc.Commit(ctx, sess.ID)
	assert.ErrorIs(t, err, session.ErrDirty)

	sess.Reprocess()
	row, err := sess.Transaction(0)
	require.NoError(t, err)
	assert.Equal(t, groceries.ID, *row.CategoryID)
	assert.True(t, row.WasUncategorized())

	_, err = svc.Commit(ctx, sess.ID)
	require.NoError(t, err)
}

func TestImportService_UnknownLayoutUsesSavedMapping(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	svc := newService(store, &mockCategories{})
	data := []byte("Datum,Omschrijving,Bedrag\n2024-01-05,Albert Heijn,-12.50\n2024-01-06,Salaris,2500.00\n")

	_, err := svc.ParseFile(ctx, "export.csv", data, ParseOptions{})
	require.ErrorIs(t, err, parser.ErrMappingNeeded)

	analysis, err := svc.Analyze(ctx, "export.csv", data)
	require.NoError(t, err)
	assert.True(t, analysis.Detection.NeedsMapping)
	assert.Nil(t, analysis.SavedMapping)
	require.NotEmpty(t, analysis.Inference.Fingerprint)
	assert.Len(t, analysis.Preview, 3)

	m := sniffer.NewColumnMapping()
	m.DateColumn, m.DescriptionColumn, m.AmountInColumn = 0, 1, 2
	m.UseNegativeForOut = true
	m.HasHeaders = true
	require.NoError(t, svc.SaveMapping(ctx, analysis.Inference.Fingerprint, "ing-nl", m))

	again, err := svc.Analyze(ctx, "export.csv", data)
	require.NoError(t, err)
	require.NotNil(t, again.SavedMapping)
	assert.Equal(t, "ing-nl", again.SavedMapping.Name)

	outcome, err := svc.ParseFile(ctx, "export.csv", data, ParseOptions{})
	require.NoError(t, err)
	require.Len(t, outcome.Result.Transactions, 2)
	assert.True(t, decimal.RequireFromString("12.50").Equal(outcome.Result.Transactions[0].AmountOut))
	assert.True(t, decimal.RequireFromString("2500").Equal(outcome.Result.Transactions[1].AmountIn))
}

func TestImportService_SaveMappingRejectsInvalid(t *testing.T) {
	svc := newService(&mockStore{}, &mockCategories{})
	err := svc.SaveMapping(context.Background(), "abc", "bad", sniffer.NewColumnMapping())
	assert.ErrorIs(t, err, sniffer.ErrMissingColumn)

	m := sniffer.NewColumnMapping()
	m.DateColumn, m.DescriptionColumn, m.AmountOutColumn = 0, 1, 2
	assert.Error(t, svc.SaveMapping(context.Background(), "", "x", m))
}

func TestImportService_ForcedFormatRejectsFile(t *testing.T) {
	svc := newService(&mockStore{}, &mockCategories{})
	data := []byte("Datum,Omschrijving,Bedrag\n2024-01-05,Albert Heijn,-12.50\n")

	_, err := svc.ParseFile(context.Background(), "x.csv", data, ParseOptions{FormatID: parser.ChaseID})
	var verr *parser.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, parser.ChaseID, verr.FormatID)
}

// rejectingParser claims every file and then fails its validation.
type rejectingParser struct{}

func (rejectingParser) ID() string   { return "rejecting" }
func (rejectingParser) Name() string { return "Rejecting" }

func (rejectingParser) Detect(*tabular.Grid) parser.Detection {
	return parser.Detection{FormatID: "rejecting", Confidence: parser.ConfidenceHigh, Reason: "claims everything"}
}

func (rejectingParser) Validate(*tabular.Grid) parser.ValidationResult {
	return parser.ValidationResult{Errors: []string{"never valid"}}
}

func (rejectingParser) Parse(*tabular.Grid) *parser.ParseResult {
	return &parser.ParseResult{FormatID: "rejecting"}
}

func dayFirstChaseCSV() []byte {
	return chaseCSV(
		"DEBIT,25/01/2024,CORNER SHOP,-1.00,DEBIT_CARD,,",
		"DEBIT,26/01/2024,BAKERY,-2.00,DEBIT_CARD,,",
		"CREDIT,27/01/2024,PAYROLL,100.00,ACH_CREDIT,,",
	)
}

func TestImportService_RejectedFormatFallsBack(t *testing.T) {
	ctx := context.Background()

	t.Run("next ranked verdict", func(t *testing.T) {
		reg := parser.NewRegistry()
		reg.Register(rejectingParser{})
		reg.Register(parser.Chase{})
		svc := NewImportService(&mockStore{}, &mockCategories{}, reg, testLogger())

		outcome, err := svc.ParseFile(ctx, "activity.csv", chaseCSV(
			"DEBIT,01/15/2024,CORNER SHOP,-1.00,DEBIT_CARD,,",
		), ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, parser.ChaseID, outcome.Result.FormatID)
		assert.Equal(t, parser.ChaseID, outcome.Detection.FormatID)
		require.Len(t, outcome.Rejections, 1)
		assert.Equal(t, "rejecting", outcome.Rejections[0].FormatID)
		assert.False(t, outcome.Detection.NeedsMapping)
	})

	t.Run("saved mapping for the header layout", func(t *testing.T) {
		store := &mockStore{}
		svc := newService(store, &mockCategories{})
		data := dayFirstChaseCSV()

		analysis, err := svc.Analyze(ctx, "activity.csv", data)
		require.NoError(t, err)
		assert.Equal(t, parser.ChaseID, analysis.Detection.FormatID)

		m := sniffer.NewColumnMapping()
		m.DateColumn, m.DescriptionColumn, m.AmountInColumn = 1, 2, 3
		m.UseNegativeForOut = true
		m.HasHeaders = true
		m.DateFormat = normalizer.DateDMY
		require.NoError(t, svc.SaveMapping(ctx, analysis.Inference.Fingerprint, "chase-eu", m))

		outcome, err := svc.ParseFile(ctx, "activity.csv", data, ParseOptions{})
		require.NoError(t, err)
		assert.Equal(t, parser.GenericID, outcome.Result.FormatID)
		assert.Contains(t, outcome.Detection.Reason, "chase-eu")
		require.Len(t, outcome.Rejections, 1)
		assert.Equal(t, parser.ChaseID, outcome.Rejections[0].FormatID)

		require.Len(t, outcome.Result.Transactions, 3)
		first := outcome.Result.Transactions[0]
		assert.Equal(t, time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), first.Date)
		assert.True(t, decimal.RequireFromString("1").Equal(first.AmountOut))
		assert.True(t, decimal.RequireFromString("100").Equal(outcome.Result.Transactions[2].AmountIn))
	})

	t.Run("manual mapping when nothing fits", func(t *testing.T) {
		svc := newService(&mockStore{}, &mockCategories{})

		outcome, err := svc.ParseFile(ctx, "activity.csv", dayFirstChaseCSV(), ParseOptions{})
		require.ErrorIs(t, err, parser.ErrMappingNeeded)
		var verr *parser.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, parser.ChaseID, verr.FormatID)

		require.NotNil(t, outcome)
		assert.Nil(t, outcome.Result)
		assert.True(t, outcome.Detection.NeedsMapping)
		require.Len(t, outcome.Rejections, 1)
		require.NotNil(t, outcome.SuggestedMapping)
		assert.Equal(t, 1, outcome.SuggestedMapping.DateColumn)
		assert.Equal(t, 2, outcome.SuggestedMapping.DescriptionColumn)

		_, err = svc.StartSession(ctx, "activity.csv", dayFirstChaseCSV(), ParseOptions{})
		assert.ErrorIs(t, err, parser.ErrMappingNeeded)
	})
}

func TestImportService_ParseErrorsReachSession(t *testing.T) {
	svc := newService(&mockStore{}, &mockCategories{})
	sess, err := svc.StartSession(context.Background(), "chase.csv", chaseCSV(
		"DEBIT,01/15/2024,A,-1.00,DEBIT_CARD,,",
		"DEBIT,01/16/2024,B,-2.00,DEBIT_CARD,,",
		"DEBIT,bad-date,C,-3.00,DEBIT_CARD,,",
	), ParseOptions{})
	require.NoError(t, err)

	assert.Len(t, sess.Transactions(), 2)
	errs := sess.ParseErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, 4, errs[0].Row)
	assert.Equal(t, "date", errs[0].Column)
}

func TestImportService_ArchivesSource(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	archive := &mockArchive{}
	svc := newService(store, &mockCategories{}).WithArchive(archive)
	data := chaseCSV("DEBIT,01/15/2024,A,-1.00,DEBIT_CARD,,")

	sess, err := svc.StartSession(ctx, "chase.csv", data, ParseOptions{})
	require.NoError(t, err)
	res, err := svc.Commit(ctx, sess.ID)
	require.NoError(t, err)

	assert.Equal(t, string(data), archive.files[res.BatchID])
	assert.Equal(t, res.StoragePath, store.batches[0].StoragePath)
	assert.Contains(t, res.StoragePath, "chase.csv")
}

func TestImportService_InsertFailureKeepsSessionOpen(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{insertErr: errors.New("connection reset")}
	svc := newService(store, &mockCategories{})

	sess, err := svc.StartSession(ctx, "chase.csv", chaseCSV("DEBIT,01/15/2024,A,-1.00,DEBIT_CARD,,"), ParseOptions{})
	require.NoError(t, err)
	_, err = svc.Commit(ctx, sess.ID)
	assert.ErrorIs(t, err, store.insertErr)
	assert.Empty(t, store.batches)

	open, err := svc.Session(sess.ID)
	require.NoError(t, err)
	assert.True(t, open.Ready())
}

func TestImportService_ConcurrentCommitWritesOnce(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{}
	svc := newService(store, &mockCategories{})

	sess, err := svc.StartSession(ctx, "chase.csv", chaseCSV(
		"DEBIT,01/15/2024,A,-1.00,DEBIT_CARD,,",
		"DEBIT,01/16/2024,B,-2.00,DEBIT_CARD,,",
	), ParseOptions{})
	require.NoError(t, err)

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Commit(ctx, sess.ID)
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.True(t, errors.Is(err, session.ErrCommitting) ||
			errors.Is(err, session.ErrCommitted) ||
			errors.Is(err, ErrSessionNotFound), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, won)
	assert.Len(t, store.batches, 1)
	assert.Len(t, store.transactions, 2)
}

func TestImportService_BatchFailureClosesSession(t *testing.T) {
	ctx := context.Background()
	store := &mockStore{batchErr: errors.New("connection reset")}
	svc := newService(store, &mockCategories{})

	sess, err := svc.StartSession(ctx, "chase.csv", chaseCSV("DEBIT,01/15/2024,A,-1.00,DEBIT_CARD,,"), ParseOptions{})
	require.NoError(t, err)

	_, err = svc.Commit(ctx, sess.ID)
	assert.ErrorIs(t, err, store.batchErr)
	assert.Len(t, store.transactions, 1)

	_, err = svc.Session(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, sess.Ready())
}

func TestImportService_CommitUnknownSession(t *testing.T) {
	svc := newService(&mockStore{}, &mockCategories{})
	_, err := svc.Commit(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
