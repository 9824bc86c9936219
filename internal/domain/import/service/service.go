// Package service provides the import orchestration logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/dedup"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/session"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/sniffer"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/tabular"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger/repository"
	"github.com/FACorreiaa/statement-ledger/pkg/metrics"
)

var ErrSessionNotFound = errors.New("import session not found")

// previewRows is how many grid rows Analyze returns.
const previewRows = 10

// Store is the persisted side of an import.
type Store interface {
	dedup.Store
	BulkInsertTransactions(ctx context.Context, records []ledger.Transaction, opts repository.InsertOptions) (repository.InsertResult, error)
	RecordImportBatch(ctx context.Context, batch ledger.ImportBatch) (uuid.UUID, error)
	GetMapping(ctx context.Context, fingerprint string) (*repository.SavedMapping, error)
	SaveMapping(ctx context.Context, m repository.SavedMapping) error
}

// CategoryService is the category management used while reviewing a session.
type CategoryService interface {
	ListCategories(ctx context.Context) ([]categorization.Category, error)
	AddKeyword(ctx context.Context, id uuid.UUID, keyword string) (categorization.Result, error)
	CreateCategory(ctx context.Context, name string, keywords []string) (*categorization.Category, categorization.Result, error)
}

// Archiver keeps a copy of committed source files.
type Archiver interface {
	Archive(ctx context.Context, batchID uuid.UUID, fileName string, data []byte) (string, error)
}

// AnalyzeResult describes a file before anything is parsed.
type AnalyzeResult struct {
	FileName  string             `json:"file_name"`
	Detection parser.Detection   `json:"detection"`
	Inference *sniffer.Inference `json:"inference"`
	Preview   [][]string         `json:"preview"`
	// SavedMapping is set when the header layout was mapped before.
	SavedMapping *repository.SavedMapping `json:"saved_mapping,omitempty"`
	// SuggestedMapping is the mapping to use if the caller goes generic.
	SuggestedMapping sniffer.ColumnMapping `json:"suggested_mapping"`
}

// ParseOptions overrides format detection.
type ParseOptions struct {
	// FormatID forces a parser, preset or "generic".
	FormatID string
	Mapping  *sniffer.ColumnMapping
}

// ParseOutcome is the result of parsing one file.
type ParseOutcome struct {
	Detection parser.Detection
	Result    *parser.ParseResult
	// Rejections are the formats that failed validation, in the order tried.
	Rejections []*parser.ValidationError
	// SuggestedMapping is set when the file needs a manual mapping.
	SuggestedMapping *sniffer.ColumnMapping
}

// CommitResult reports a committed session.
type CommitResult struct {
	BatchID      uuid.UUID       `json:"batch_id"`
	Added        int             `json:"added"`
	Skipped      int             `json:"skipped"`
	TotalDebited decimal.Decimal `json:"total_debited"`
	StoragePath  string          `json:"storage_path,omitempty"`
}

type openSession struct {
	sess *session.Session
	data []byte
}

// ImportService orchestrates file analysis, review sessions and commits.
type ImportService struct {
	store      Store
	categories CategoryService
	registry   *parser.Registry
	detector   *dedup.Detector
	archive    Archiver
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	mu       sync.Mutex
	sessions map[uuid.UUID]*openSession
}

// NewImportService creates a new import service
func NewImportService(store Store, categories CategoryService, registry *parser.Registry, logger *slog.Logger) *ImportService {
	return &ImportService{
		store:      store,
		categories: categories,
		registry:   registry,
		detector:   dedup.NewDetector(store, logger),
		logger:     logger,
		tracer:     otel.Tracer("statement-ledger/import"),
		sessions:   make(map[uuid.UUID]*openSession),
	}
}

// WithArchive stores committed source files in a.
func (s *ImportService) WithArchive(a Archiver) *ImportService {
	s.archive = a
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *ImportService) WithMetrics(m *metrics.Metrics) *ImportService {
	s.metrics = m
	s.detector.WithMetrics(m)
	return s
}

// Analyze reads a file and reports the detected format, the column
// inference and any mapping saved for the same header layout.
func (s *ImportService) Analyze(ctx context.Context, fileName string, data []byte) (*AnalyzeResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.Analyze", trace.WithAttributes(attribute.String("file", fileName)))
	defer span.End()

	grid, err := tabular.Read(fileName, data)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read %s: %w", fileName, err)
	}

	inf := sniffer.Infer(grid)
	res := &AnalyzeResult{
		FileName:         fileName,
		Detection:        s.registry.Detect(grid, fileName),
		Inference:        inf,
		SuggestedMapping: inf.Mapping,
	}
	for i := 0; i < grid.Len() && i < previewRows; i++ {
		res.Preview = append(res.Preview, grid.Row(i).Strings())
	}

	saved, err := s.savedMapping(ctx, inf.Fingerprint)
	if err != nil {
		return nil, err
	}
	if saved != nil {
		res.SavedMapping = saved
		res.SuggestedMapping = saved.Mapping
	}
	return res, nil
}

// ParseFile reads and parses a file. Without a FormatID the format is
// detected. When the chosen format rejects the file, the other positive
// verdicts are tried in rank order, then the mapping saved for the header
// layout. If nothing fits, the outcome carries NeedsMapping, the inferred
// mapping and every rejection, and the error wraps parser.ErrMappingNeeded.
// A format forced by the caller is not replaced; its rejection returns a
// *parser.ValidationError.
func (s *ImportService) ParseFile(ctx context.Context, fileName string, data []byte, opts ParseOptions) (*ParseOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "import.ParseFile", trace.WithAttributes(attribute.String("file", fileName)))
	defer span.End()

	grid, err := tabular.Read(fileName, data)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read %s: %w", fileName, err)
	}

	if opts.FormatID != "" {
		detection := parser.Detection{FormatID: opts.FormatID, Reason: "format chosen by caller"}
		p, err := s.registry.Resolve(opts.FormatID, opts.Mapping)
		if err != nil {
			return &ParseOutcome{Detection: detection}, err
		}
		result, err := parser.Run(p, grid)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			return &ParseOutcome{Detection: detection}, err
		}
		return s.parsed(ctx, span, fileName, &ParseOutcome{Detection: detection, Result: result}), nil
	}

	detection := s.registry.Detect(grid, fileName)
	inf := sniffer.Infer(grid)
	outcome := &ParseOutcome{Detection: detection}

	candidates := make([]parser.Detection, 0, 1+len(detection.Alternatives))
	switch {
	case detection.Positive():
		candidates = append(candidates, detection)
		candidates = append(candidates, detection.Alternatives...)
	case opts.Mapping != nil:
		candidates = append(candidates, parser.Detection{FormatID: parser.GenericID, Reason: "mapping chosen by caller"})
	}
	saved, err := s.savedMapping(ctx, inf.Fingerprint)
	if err != nil {
		return nil, err
	}
	if saved != nil {
		m := saved.Mapping
		candidates = append(candidates, parser.Detection{
			FormatID:   parser.GenericID,
			Confidence: detection.Confidence,
			Reason:     fmt.Sprintf("saved mapping %s", saved.Name),
			Mapping:    &m,
		})
	}

	for _, c := range candidates {
		formatID, mapping := c.FormatID, opts.Mapping
		if c.Preset != "" {
			formatID = c.Preset
		}
		if mapping == nil {
			mapping = c.Mapping
		}
		p, err := s.registry.Resolve(formatID, mapping)
		if err != nil {
			return outcome, err
		}
		result, err := parser.Run(p, grid)
		var verr *parser.ValidationError
		if errors.As(err, &verr) {
			s.logger.InfoContext(ctx, "format rejected the file",
				slog.String("file", fileName),
				slog.String("format", verr.FormatID),
				slog.Any("error", verr),
			)
			outcome.Rejections = append(outcome.Rejections, verr)
			continue
		}
		if err != nil {
			return outcome, err
		}
		if len(outcome.Rejections) > 0 {
			c.Reason = fmt.Sprintf("%s (after %d rejected)", c.Reason, len(outcome.Rejections))
		}
		c.Alternatives = nil
		outcome.Detection, outcome.Result = c, result
		return s.parsed(ctx, span, fileName, outcome), nil
	}

	outcome.Detection.NeedsMapping = true
	suggestion := inf.Mapping
	outcome.SuggestedMapping = &suggestion
	span.SetStatus(codes.Error, "mapping needed")
	if len(outcome.Rejections) == 0 {
		return outcome, fmt.Errorf("%s: %w", fileName, parser.ErrMappingNeeded)
	}
	return outcome, fmt.Errorf("%s: %w: %w", fileName, parser.ErrMappingNeeded, outcome.Rejections[0])
}

func (s *ImportService) parsed(ctx context.Context, span trace.Span, fileName string, outcome *ParseOutcome) *ParseOutcome {
	result := outcome.Result
	s.metrics.ObserveParse(result.FormatID, result.ParsedRows, len(result.Errors))
	span.SetAttributes(
		attribute.String("format", result.FormatID),
		attribute.Int("parsed", result.ParsedRows),
		attribute.Int("errors", len(result.Errors)),
	)
	s.logger.InfoContext(ctx, "parsed statement",
		slog.String("file", fileName),
		slog.String("format", result.FormatID),
		slog.Int("parsed", result.ParsedRows),
		slog.Int("errors", len(result.Errors)),
		slog.Int("skipped", result.SkippedRows),
	)
	return outcome
}

// StartSession parses a file, categorizes it, flags rows already in the
// ledger and opens a review session.
func (s *ImportService) StartSession(ctx context.Context, fileName string, data []byte, opts ParseOptions) (*session.Session, error) {
	outcome, err := s.ParseFile(ctx, fileName, data, opts)
	if err != nil {
		return nil, err
	}
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	duplicates, err := s.detector.FindDuplicateSignatures(ctx, outcome.Result.Transactions)
	if err != nil {
		return nil, err
	}

	sess := session.New(fileName, outcome.Result.FormatID, outcome.Result.Transactions,
		outcome.Result.Errors, categories, duplicates)

	s.mu.Lock()
	s.sessions[sess.ID] = &openSession{sess: sess, data: data}
	s.mu.Unlock()

	sum := sess.Summary()
	s.logger.InfoContext(ctx, "import session started",
		slog.String("session", sess.ID.String()),
		slog.Int("transactions", sum.Total),
		slog.Int("conflicts", sum.Conflicts),
		slog.Int("duplicates", sum.Duplicates),
	)
	return sess, nil
}

// Session returns an open session.
func (s *ImportService) Session(id uuid.UUID) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return open.sess, nil
}

// DiscardSession drops an open session without writing anything.
func (s *ImportService) DiscardSession(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// AddKeyword adds keyword to a category, which recategorizes the persisted
// ledger, and marks every open session dirty.
func (s *ImportService) AddKeyword(ctx context.Context, categoryID uuid.UUID, keyword string) (categorization.Result, error) {
	res, err := s.categories.AddKeyword(ctx, categoryID, keyword)
	if err != nil {
		return categorization.Result{}, err
	}
	return res, s.refreshSessions(ctx)
}

// CreateCategory creates a category and marks every open session dirty.
func (s *ImportService) CreateCategory(ctx context.Context, name string, keywords []string) (*categorization.Category, categorization.Result, error) {
	c, res, err := s.categories.CreateCategory(ctx, name, keywords)
	if err != nil {
		return nil, categorization.Result{}, err
	}
	return c, res, s.refreshSessions(ctx)
}

func (s *ImportService) refreshSessions(ctx context.Context) error {
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload categories: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, open := range s.sessions {
		open.sess.UpdateCategories(categories)
	}
	return nil
}

// Commit writes a ready session. Normal rows are inserted with the
// duplicate check, duplicates the user chose to import bypass it, and one
// import batch is recorded for the rows written.
func (s *ImportService) Commit(ctx context.Context, sessionID uuid.UUID) (*CommitResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.Commit", trace.WithAttributes(attribute.String("session", sessionID.String())))
	defer span.End()

	s.mu.Lock()
	open, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	sess := open.sess

	plan, err := sess.BeginCommit()
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	res := &CommitResult{BatchID: batchID, Skipped: plan.Skipped, TotalDebited: decimal.Zero}

	normal, err := s.store.BulkInsertTransactions(ctx, records(plan.Normal, batchID), repository.InsertOptions{})
	if err != nil {
		sess.AbortCommit()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert transactions: %w", err)
	}
	// A retry re-inserts the normal rows through the duplicate check, so
	// rows written above are skipped the second time.
	forced, err := s.store.BulkInsertTransactions(ctx, records(plan.ExplicitDuplicates, batchID),
		repository.InsertOptions{SkipDuplicateCheck: true})
	if err != nil {
		sess.AbortCommit()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to insert duplicates: %w", err)
	}
	res.Added = normal.Added + forced.Added
	res.Skipped += normal.Skipped
	res.TotalDebited = normal.Debited.Add(forced.Debited)

	if s.archive != nil {
		path, err := s.archive.Archive(ctx, batchID, sess.FileName, open.data)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to archive source file",
				slog.String("file", sess.FileName),
				slog.Any("error", err),
			)
		}
		res.StoragePath = path
	}

	if _, err := s.store.RecordImportBatch(ctx, ledger.ImportBatch{
		ID:               batchID,
		FileName:         sess.FileName,
		SourceFormat:     sess.SourceFormat,
		TransactionCount: res.Added,
		TotalDebited:     res.TotalDebited,
		StoragePath:      res.StoragePath,
		CreatedAt:        time.Now(),
	}); err != nil {
		// Every row is written; the session cannot be committed again.
		sess.MarkCommitted()
		s.DiscardSession(sessionID)
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "transactions written without an import batch",
			slog.String("batch", batchID.String()),
			slog.Int("added", res.Added),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to record import batch: %w", err)
	}

	sess.MarkCommitted()
	s.DiscardSession(sessionID)

	s.metrics.ObserveCommit(res.Added, res.Skipped)
	span.SetAttributes(attribute.Int("added", res.Added), attribute.Int("skipped", res.Skipped))
	s.logger.InfoContext(ctx, "import committed",
		slog.String("batch", batchID.String()),
		slog.String("file", sess.FileName),
		slog.Int("added", res.Added),
		slog.Int("skipped", res.Skipped),
		slog.String("debited", res.TotalDebited.StringFixed(2)),
	)
	return res, nil
}

// SaveMapping remembers a generic column mapping for a header fingerprint.
func (s *ImportService) SaveMapping(ctx context.Context, fingerprint, name string, mapping sniffer.ColumnMapping) error {
	if fingerprint == "" {
		return errors.New("a header fingerprint is required to save a mapping")
	}
	if err := mapping.Validate(0); err != nil {
		return fmt.Errorf("invalid mapping: %w", err)
	}
	if err := s.store.SaveMapping(ctx, repository.SavedMapping{
		Fingerprint: fingerprint,
		Name:        name,
		Mapping:     mapping,
	}); err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

func (s *ImportService) savedMapping(ctx context.Context, fingerprint string) (*repository.SavedMapping, error) {
	if fingerprint == "" {
		return nil, nil
	}
	saved, err := s.store.GetMapping(ctx, fingerprint)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup mapping: %w", err)
	}
	return saved, nil
}

func records(rows []session.Transaction, batchID uuid.UUID) []ledger.Transaction {
	out := make([]ledger.Transaction, len(rows))
	for i, tx := range rows {
		out[i] = ledger.NewTransaction(tx.CanonicalTransaction, tx.CategoryID, &batchID)
	}
	return out
}
