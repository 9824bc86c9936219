package categorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/statement-ledger/pkg/metrics"
)

// Store is the persisted side of category management. Every method that
// changes keywords also applies the cascading recategorization in the same
// database transaction.
type Store interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name string, keywords []string) (*Category, Result, error)
	RenameCategory(ctx context.Context, id uuid.UUID, name string) error
	DeleteCategory(ctx context.Context, id uuid.UUID) (Result, error)
	UpdateCategoryKeywords(ctx context.Context, id uuid.UUID, keywords []string) (Result, error)
	RecategorizeTransactions(ctx context.Context, mode Mode) (Result, error)
}

// Service manages categories and keeps persisted transactions consistent
// with their keyword sets.
type Service struct {
	store   Store
	cache   *Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// DefaultCacheTTL is used when NewService gets no cache.
const DefaultCacheTTL = time.Minute

// NewService creates a new categorization service
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		cache:  NewCache(DefaultCacheTTL, nil),
		logger: logger,
		tracer: otel.Tracer("statement-ledger/categorization"),
	}
}

// WithCache replaces the category cache.
func (s *Service) WithCache(c *Cache) *Service {
	s.cache = c
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// ListCategories returns all categories ordered for display.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	if cached, ok := s.cache.Get(); ok {
		return cached, nil
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	SortByDisplayOrder(categories)
	s.cache.Set(categories)
	return categories, nil
}

// ResolveByName finds a category by name. Unknown names produce an error
// carrying the closest existing name, if any.
func (s *Service) ResolveByName(ctx context.Context, name string) (*Category, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if c := FindByName(categories, name); c != nil {
		return c, nil
	}
	if suggestion := SuggestName(name, categories); suggestion != "" {
		return nil, fmt.Errorf("%w: %q (did you mean %q?)", ErrCategoryNotFound, name, suggestion)
	}
	return nil, fmt.Errorf("%w: %q", ErrCategoryNotFound, name)
}

// CreateCategory adds a user category. Its keywords are checked against
// every other category before anything is written.
func (s *Service) CreateCategory(ctx context.Context, name string, keywords []string) (*Category, Result, error) {
	ctx, span := s.tracer.Start(ctx, "categorization.CreateCategory")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Result{}, ErrEmptyName
	}
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, Result{}, err
	}
	if FindByName(categories, name) != nil {
		return nil, Result{}, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	keywords = NormalizeKeywords(keywords)
	if err := CheckKeywords(categories, uuid.Nil, keywords); err != nil {
		return nil, Result{}, err
	}

	created, res, err := s.store.CreateCategory(ctx, name, keywords)
	s.cache.Invalidate()
	if err != nil {
		return nil, Result{}, fmt.Errorf("failed to create category: %w", err)
	}
	s.observe(ctx, "create", created.Name, res)
	return created, res, nil
}

// RenameCategory renames a category. Uncategorized keeps its name.
func (s *Service) RenameCategory(ctx context.Context, id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	target, categories, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if target.IsUncategorized() {
		return fmt.Errorf("%w: %s", ErrSystemCategory, target.Name)
	}
	if other := FindByName(categories, name); other != nil && other.ID != id {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	err = s.store.RenameCategory(ctx, id, name)
	s.cache.Invalidate()
	if err != nil {
		return fmt.Errorf("failed to rename category: %w", err)
	}
	return nil
}

// DeleteCategory removes a user category. Its transactions are re-evaluated
// as if its keywords had been cleared.
func (s *Service) DeleteCategory(ctx context.Context, id uuid.UUID) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "categorization.DeleteCategory")
	defer span.End()

	target, _, err := s.lookup(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if target.IsSystem {
		return Result{}, fmt.Errorf("%w: %s", ErrSystemCategory, target.Name)
	}
	res, err := s.store.DeleteCategory(ctx, id)
	s.cache.Invalidate()
	if err != nil {
		return Result{}, fmt.Errorf("failed to delete category: %w", err)
	}
	s.observe(ctx, "delete", target.Name, res)
	return res, nil
}

// AddKeyword appends keyword to a category. A keyword owned by another
// category is rejected before mutation with a *KeywordConflictError.
func (s *Service) AddKeyword(ctx context.Context, id uuid.UUID, keyword string) (Result, error) {
	target, categories, err := s.lookup(ctx, id)
	if err != nil {
		return Result{}, err
	}
	keywords, err := AppendKeyword(categories, *target, keyword)
	if err != nil {
		return Result{}, err
	}
	return s.replaceKeywords(ctx, *target, keywords)
}

// RemoveKeyword drops keyword from a category.
func (s *Service) RemoveKeyword(ctx context.Context, id uuid.UUID, keyword string) (Result, error) {
	target, _, err := s.lookup(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if target.IsUncategorized() {
		return Result{}, fmt.Errorf("%w: %s", ErrSystemCategory, target.Name)
	}
	keywords, err := RemoveKeyword(*target, keyword)
	if err != nil {
		return Result{}, err
	}
	return s.replaceKeywords(ctx, *target, keywords)
}

// SetKeywords replaces the keyword list of a category.
func (s *Service) SetKeywords(ctx context.Context, id uuid.UUID, keywords []string) (Result, error) {
	target, categories, err := s.lookup(ctx, id)
	if err != nil {
		return Result{}, err
	}
	normalized, err := PrepareKeywordUpdate(categories, *target, keywords)
	if err != nil {
		return Result{}, err
	}
	return s.replaceKeywords(ctx, *target, normalized)
}

// RecategorizeTransactions re-evaluates persisted transactions against the
// current categories.
func (s *Service) RecategorizeTransactions(ctx context.Context, mode Mode) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "categorization.RecategorizeTransactions",
		trace.WithAttributes(attribute.String("mode", string(mode))))
	defer span.End()

	res, err := s.store.RecategorizeTransactions(ctx, mode)
	if err != nil {
		span.RecordError(err)
		return Result{}, fmt.Errorf("failed to recategorize transactions: %w", err)
	}
	s.metrics.ObserveRecategorization("bulk_"+string(mode), res.Assigned, res.Uncategorized, res.Conflicts)
	s.logger.InfoContext(ctx, "recategorized transactions",
		slog.String("mode", string(mode)),
		slog.Int("assigned", res.Assigned),
		slog.Int("uncategorized", res.Uncategorized),
		slog.Int("conflicts", res.Conflicts),
	)
	return res, nil
}

// SeedResult reports what Seed changed.
type SeedResult struct {
	Created       []string
	KeywordsAdded int
	// Skipped lists keywords left out because another category owns them.
	Skipped []string
	Recategorized Result
}

// Seed creates the named categories that do not exist yet and adds missing
// keywords to the ones that do. Keywords owned by a different category are
// skipped rather than failing the whole seed.
func (s *Service) Seed(ctx context.Context, seeds []Category) (SeedResult, error) {
	var out SeedResult
	for _, seed := range seeds {
		categories, err := s.ListCategories(ctx)
		if err != nil {
			return out, err
		}
		existing := FindByName(categories, seed.Name)

		var keywords []string
		for _, kw := range NormalizeKeywords(seed.Keywords) {
			exclude := uuid.Nil
			if existing != nil {
				exclude = existing.ID
			}
			if owner := FindKeywordOwner(categories, kw, exclude); owner != nil {
				out.Skipped = append(out.Skipped, kw)
				s.logger.WarnContext(ctx, "seed keyword already owned",
					slog.String("keyword", kw),
					slog.String("category", seed.Name),
					slog.String("owner", owner.Name),
				)
				continue
			}
			keywords = append(keywords, kw)
		}

		if existing == nil {
			_, res, err := s.CreateCategory(ctx, seed.Name, keywords)
			if err != nil {
				return out, fmt.Errorf("seed %q: %w", seed.Name, err)
			}
			out.Created = append(out.Created, seed.Name)
			out.KeywordsAdded += len(keywords)
			out.Recategorized.Add(res)
			continue
		}

		merged := NormalizeKeywords(append(append([]string{}, existing.Keywords...), keywords...))
		if KeywordSetsEqual(merged, existing.Keywords) {
			continue
		}
		res, err := s.replaceKeywords(ctx, *existing, merged)
		if err != nil {
			return out, fmt.Errorf("seed %q: %w", seed.Name, err)
		}
		out.KeywordsAdded += len(merged) - len(existing.Keywords)
		out.Recategorized.Add(res)
	}
	return out, nil
}

func (s *Service) replaceKeywords(ctx context.Context, target Category, keywords []string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "categorization.UpdateCategoryKeywords",
		trace.WithAttributes(attribute.String("category", target.Name)))
	defer span.End()

	res, err := s.store.UpdateCategoryKeywords(ctx, target.ID, keywords)
	s.cache.Invalidate()
	if err != nil {
		span.RecordError(err)
		var conflict *KeywordConflictError
		if errors.As(err, &conflict) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("failed to update keywords: %w", err)
	}
	s.observe(ctx, "keywords", target.Name, res)
	return res, nil
}

func (s *Service) lookup(ctx context.Context, id uuid.UUID) (*Category, []Category, error) {
	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, nil, err
	}
	target := FindByID(categories, id)
	if target == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	return target, categories, nil
}

func (s *Service) observe(ctx context.Context, trigger, category string, res Result) {
	s.metrics.ObserveRecategorization(trigger, res.Assigned, res.Uncategorized, res.Conflicts)
	s.logger.InfoContext(ctx, "category updated",
		slog.String("trigger", trigger),
		slog.String("category", category),
		slog.Int("assigned", res.Assigned),
		slog.Int("uncategorized", res.Uncategorized),
		slog.Int("conflicts", res.Conflicts),
	)
}
