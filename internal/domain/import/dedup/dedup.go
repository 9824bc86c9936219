// Package dedup finds parsed transactions that already exist in the ledger.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/metrics"
)

// Store is the read side of the persisted ledger needed for duplicate checks.
type Store interface {
	QueryTransactionsByDateRange(ctx context.Context, start, end time.Time) ([]ledger.Transaction, error)
}

// Detector matches candidate signatures against persisted transactions.
// Matching is exact on (date, description, amount out, amount in); near
// matches such as a different description casing are not duplicates.
type Detector struct {
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDetector creates a duplicate detector backed by store.
func NewDetector(store Store, logger *slog.Logger) *Detector {
	return &Detector{store: store, logger: logger}
}

// WithMetrics attaches Prometheus collectors.
func (d *Detector) WithMetrics(m *metrics.Metrics) *Detector {
	d.metrics = m
	return d
}

// FindDuplicateSignatures returns the signatures of candidates that are
// already persisted. Only transactions dated within the candidates' own
// date range are loaded.
func (d *Detector) FindDuplicateSignatures(ctx context.Context, candidates []ledger.CanonicalTransaction) (map[ledger.Signature]struct{}, error) {
	found := make(map[ledger.Signature]struct{})
	start, end, ok := ledger.DateRange(candidates)
	if !ok {
		return found, nil
	}

	existing, err := d.store.QueryTransactionsByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions between %s and %s: %w",
			start.Format(ledger.DateLayout), end.Format(ledger.DateLayout), err)
	}

	found = Intersect(candidates, existing)
	d.metrics.ObserveDuplicates(len(found))
	if len(found) > 0 {
		d.logger.DebugContext(ctx, "duplicate transactions found",
			slog.Int("candidates", len(candidates)),
			slog.Int("duplicates", len(found)),
		)
	}
	return found, nil
}

// Intersect returns the candidate signatures present in existing.
func Intersect(candidates []ledger.CanonicalTransaction, existing []ledger.Transaction) map[ledger.Signature]struct{} {
	known := make(map[ledger.Signature]struct{}, len(existing))
	for _, tx := range existing {
		known[tx.Signature()] = struct{}{}
	}
	found := make(map[ledger.Signature]struct{})
	for _, c := range candidates {
		sig := c.Signature()
		if _, ok := known[sig]; ok {
			found[sig] = struct{}{}
		}
	}
	return found
}
