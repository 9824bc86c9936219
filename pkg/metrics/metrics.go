// Package metrics exposes Prometheus counters for the ingestion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statement_ledger"

// Metrics groups the pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RowsParsed            *prometheus.CounterVec
	RowErrors             *prometheus.CounterVec
	DuplicatesDetected    prometheus.Counter
	TransactionsCommitted *prometheus.CounterVec
	Recategorized         *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RowsParsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_parsed_total",
			Help:      "Statement rows parsed into canonical transactions.",
		}, []string{"format"}),
		RowErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_errors_total",
			Help:      "Statement rows skipped because they failed to parse.",
		}, []string{"format"}),
		DuplicatesDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_detected_total",
			Help:      "Parsed transactions whose signature already exists in the ledger.",
		}),
		TransactionsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_committed_total",
			Help:      "Transactions handled by session commits, by outcome.",
		}, []string{"outcome"}),
		Recategorized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recategorized_total",
			Help:      "Persisted transactions re-evaluated after category changes.",
		}, []string{"trigger", "outcome"}),
		gatherer: reg,
	}
}

// ObserveParse records one parse run.
func (m *Metrics) ObserveParse(format string, parsed, failed int) {
	if m == nil {
		return
	}
	m.RowsParsed.WithLabelValues(format).Add(float64(parsed))
	m.RowErrors.WithLabelValues(format).Add(float64(failed))
}

// ObserveDuplicates records duplicates found for a candidate batch.
func (m *Metrics) ObserveDuplicates(n int) {
	if m == nil {
		return
	}
	m.DuplicatesDetected.Add(float64(n))
}

// ObserveCommit records the result of a session commit.
func (m *Metrics) ObserveCommit(added, skipped int) {
	if m == nil {
		return
	}
	m.TransactionsCommitted.WithLabelValues("added").Add(float64(added))
	m.TransactionsCommitted.WithLabelValues("skipped").Add(float64(skipped))
}

// ObserveRecategorization records the counts of one recategorization run.
func (m *Metrics) ObserveRecategorization(trigger string, assigned, uncategorized, conflicts int) {
	if m == nil {
		return
	}
	m.Recategorized.WithLabelValues(trigger, "assigned").Add(float64(assigned))
	m.Recategorized.WithLabelValues(trigger, "uncategorized").Add(float64(uncategorized))
	m.Recategorized.WithLabelValues(trigger, "conflict").Add(float64(conflicts))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
