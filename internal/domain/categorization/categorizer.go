package categorization

import (
	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

// Outcome is the categorization verdict for one transaction.
type Outcome struct {
	CategoryID *uuid.UUID
	IsConflict bool
	// Candidates holds every matching category when IsConflict is set.
	Candidates []uuid.UUID
}

// Matched reports whether at least one category claimed the transaction.
func (o Outcome) Matched() bool {
	return o.CategoryID != nil || o.IsConflict
}

// OutcomeFor converts a match set into an outcome.
func OutcomeFor(matches []uuid.UUID) Outcome {
	switch len(matches) {
	case 0:
		return Outcome{}
	case 1:
		id := matches[0]
		return Outcome{CategoryID: &id}
	default:
		return Outcome{IsConflict: true, Candidates: append([]uuid.UUID(nil), matches...)}
	}
}

// Categorize matches every transaction's MatchField against the keyword
// sets of categories. It has no side effects: the same inputs always give
// the same outcomes, and category order never changes the conflict verdict.
func Categorize(txns []ledger.CanonicalTransaction, categories []Category) []Outcome {
	engine := NewEngine(categories)
	texts := make([]string, len(txns))
	for i, tx := range txns {
		texts[i] = tx.MatchField
	}
	return CategorizeTexts(engine, texts)
}

// CategorizeTexts runs a prebuilt engine over raw match fields.
func CategorizeTexts(engine *Engine, texts []string) []Outcome {
	matches := engine.MatchBatch(texts)
	out := make([]Outcome, len(texts))
	for i, m := range matches {
		out[i] = OutcomeFor(m)
	}
	return out
}
