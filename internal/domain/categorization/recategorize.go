package categorization

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Mode selects which persisted transactions a bulk run re-evaluates.
type Mode string

const (
	ModeUncategorized Mode = "uncategorized"
	ModeAll           Mode = "all"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUncategorized, ModeAll:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown recategorization mode %q (want %q or %q)", s, ModeUncategorized, ModeAll)
	}
}

// TransactionRef is the slice of a persisted transaction needed to
// re-evaluate its category.
type TransactionRef struct {
	ID         uuid.UUID
	MatchField string
	CategoryID *uuid.UUID
}

// Reassignment moves one transaction to To (nil means uncategorized).
type Reassignment struct {
	TransactionID uuid.UUID
	From          *uuid.UUID
	To            *uuid.UUID
}

// Result reports the outcome of a recategorization run.
type Result struct {
	Assigned      int `json:"assigned"`
	Uncategorized int `json:"uncategorized"`
	Conflicts     int `json:"conflicts"`
}

// Changed returns the number of transactions whose category moved.
func (r Result) Changed() int {
	return r.Assigned + r.Uncategorized
}

// Add accumulates other into r.
func (r *Result) Add(other Result) {
	r.Assigned += other.Assigned
	r.Uncategorized += other.Uncategorized
	r.Conflicts += other.Conflicts
}

// PlanKeywordChange computes the reassignments caused by replacing the
// keywords of categoryID from oldKeywords to newKeywords. categories must
// already carry newKeywords for categoryID.
//
// Transactions in the category that stop matching move to the single other
// matching category or to nil, never into a conflict. Uncategorized
// transactions that now match are assigned only when the category is their
// sole match; otherwise they are counted as conflicts and stay nil.
func PlanKeywordChange(categoryID uuid.UUID, oldKeywords, newKeywords []string, categories []Category, txns []TransactionRef) ([]Reassignment, Result) {
	var res Result
	if KeywordSetsEqual(oldKeywords, newKeywords) {
		return nil, res
	}

	target := NewEngine([]Category{{ID: categoryID, Keywords: newKeywords}})
	all := NewEngine(categories)

	var plan []Reassignment
	for _, tx := range txns {
		switch {
		case tx.CategoryID != nil && *tx.CategoryID == categoryID:
			if len(target.MatchCategories(tx.MatchField)) > 0 {
				continue
			}
			others := without(all.MatchCategories(tx.MatchField), categoryID)
			if len(others) == 1 {
				to := others[0]
				plan = append(plan, Reassignment{TransactionID: tx.ID, From: tx.CategoryID, To: &to})
				res.Assigned++
				continue
			}
			plan = append(plan, Reassignment{TransactionID: tx.ID, From: tx.CategoryID})
			res.Uncategorized++

		case tx.CategoryID == nil:
			if len(target.MatchCategories(tx.MatchField)) == 0 {
				continue
			}
			if len(without(all.MatchCategories(tx.MatchField), categoryID)) > 0 {
				res.Conflicts++
				continue
			}
			to := categoryID
			plan = append(plan, Reassignment{TransactionID: tx.ID, To: &to})
			res.Assigned++
		}
	}
	return plan, res
}

// PlanBulk re-evaluates txns against the current categories. In
// ModeUncategorized only transactions without a category are considered.
// A transaction whose category is still one of several matches keeps it and
// is only counted as a conflict. Only actual moves are planned, so a second
// run over the result plans nothing.
func PlanBulk(mode Mode, categories []Category, txns []TransactionRef) ([]Reassignment, Result) {
	var res Result
	var plan []Reassignment
	engine := NewEngine(categories)

	for _, tx := range txns {
		if mode == ModeUncategorized && tx.CategoryID != nil {
			continue
		}
		outcome := OutcomeFor(engine.MatchCategories(tx.MatchField))
		if outcome.IsConflict {
			res.Conflicts++
			// A conflict already settled on one of its candidates stays settled.
			if tx.CategoryID != nil && slices.Contains(outcome.Candidates, *tx.CategoryID) {
				continue
			}
		}
		if sameCategory(tx.CategoryID, outcome.CategoryID) {
			continue
		}
		plan = append(plan, Reassignment{TransactionID: tx.ID, From: tx.CategoryID, To: outcome.CategoryID})
		if outcome.CategoryID != nil {
			res.Assigned++
		} else {
			res.Uncategorized++
		}
	}
	return plan, res
}

func without(ids []uuid.UUID, drop uuid.UUID) []uuid.UUID {
	out := ids[:0:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func sameCategory(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
