package categorization

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(matchField string, categoryID *uuid.UUID) TransactionRef {
	return TransactionRef{ID: uuid.New(), MatchField: matchField, CategoryID: categoryID}
}

func ptr(id uuid.UUID) *uuid.UUID { return &id }

// apply mimics the store: it moves refs according to plan.
func apply(txns []TransactionRef, plan []Reassignment) []TransactionRef {
	byID := make(map[uuid.UUID]int, len(txns))
	for i, tx := range txns {
		byID[tx.ID] = i
	}
	out := append([]TransactionRef(nil), txns...)
	for _, r := range plan {
		out[byID[r.TransactionID]].CategoryID = r.To
	}
	return out
}

func TestPlanKeywordChange_NoOpWhenSetEqual(t *testing.T) {
	dining := newCategory("Dining", "STARBUCKS", "COSTA")
	txns := []TransactionRef{ref("STARBUCKS 1", &dining.ID), ref("COSTA", nil)}

	plan, res := PlanKeywordChange(dining.ID, []string{"STARBUCKS", "COSTA"}, []string{"costa", "starbucks"},
		[]Category{dining}, txns)

	assert.Empty(t, plan)
	assert.Equal(t, Result{}, res)
}

func TestPlanKeywordChange_RemovedKeywordGoesToNull(t *testing.T) {
	old := []string{"STARBUCKS"}
	dining := newCategory("Dining")
	groceries := newCategory("Groceries", "LIDL")
	tx := ref("STARBUCKS #123 SEATTLE", &dining.ID)

	plan, res := PlanKeywordChange(dining.ID, old, dining.Keywords, []Category{uncategorized(), dining, groceries}, []TransactionRef{tx})

	require.Len(t, plan, 1)
	assert.Equal(t, tx.ID, plan[0].TransactionID)
	assert.Nil(t, plan[0].To)
	assert.Equal(t, Result{Uncategorized: 1}, res)
	assert.Zero(t, res.Conflicts)
}

func TestPlanKeywordChange_DemotedToSingleOtherMatch(t *testing.T) {
	dining := newCategory("Dining", "RESTAURANT")
	coffee := newCategory("Coffee", "STARBUCKS")
	tx := ref("STARBUCKS", &dining.ID)

	plan, res := PlanKeywordChange(dining.ID, []string{"RESTAURANT", "STARBUCKS"}, dining.Keywords,
		[]Category{dining, coffee}, []TransactionRef{tx})

	require.Len(t, plan, 1)
	require.NotNil(t, plan[0].To)
	assert.Equal(t, coffee.ID, *plan[0].To)
	assert.Equal(t, Result{Assigned: 1}, res)
}

func TestPlanKeywordChange_DemotionNeverFlagsConflict(t *testing.T) {
	dining := newCategory("Dining")
	coffee := newCategory("Coffee", "STARBUCKS")
	retail := newCategory("Retail", "RESERVE")
	tx := ref("STARBUCKS RESERVE", &dining.ID)

	plan, res := PlanKeywordChange(dining.ID, []string{"STARBUCKS RESERVE"}, nil,
		[]Category{dining, coffee, retail}, []TransactionRef{tx})

	require.Len(t, plan, 1)
	assert.Nil(t, plan[0].To)
	assert.Equal(t, Result{Uncategorized: 1}, res)
}

func TestPlanKeywordChange_StillMatchingStays(t *testing.T) {
	dining := newCategory("Dining", "COSTA")
	tx := ref("COSTA COFFEE", &dining.ID)

	plan, res := PlanKeywordChange(dining.ID, []string{"COSTA", "STARBUCKS"}, dining.Keywords,
		[]Category{dining}, []TransactionRef{tx})

	assert.Empty(t, plan)
	assert.Equal(t, Result{}, res)
}

func TestPlanKeywordChange_PromotesUncategorized(t *testing.T) {
	coffee := newCategory("Coffee", "STARBUCKS")
	retail := newCategory("Retail", "AMAZON")
	single := ref("STARBUCKS 42", nil)
	ambiguous := ref("STARBUCKS ON AMAZON", nil)
	unrelated := ref("PAYROLL", nil)
	other := ref("AMAZON", &retail.ID)

	plan, res := PlanKeywordChange(coffee.ID, nil, coffee.Keywords,
		[]Category{coffee, retail}, []TransactionRef{single, ambiguous, unrelated, other})

	require.Len(t, plan, 1)
	assert.Equal(t, single.ID, plan[0].TransactionID)
	require.NotNil(t, plan[0].To)
	assert.Equal(t, coffee.ID, *plan[0].To)
	assert.Equal(t, Result{Assigned: 1, Conflicts: 1}, res)
}

func TestPlanBulk(t *testing.T) {
	coffee := newCategory("Coffee", "STARBUCKS")
	retail := newCategory("Retail", "AMAZON")
	categories := []Category{uncategorized(), coffee, retail}

	newMatch := ref("STARBUCKS 1", nil)
	conflict := ref("AMAZON STARBUCKS", nil)
	stale := ref("LIDL", &retail.ID)
	moved := ref("AMAZON PRIME", &coffee.ID)
	ok := ref("STARBUCKS 2", &coffee.ID)
	txns := []TransactionRef{newMatch, conflict, stale, moved, ok}

	t.Run("uncategorized only", func(t *testing.T) {
		plan, res := PlanBulk(ModeUncategorized, categories, txns)
		require.Len(t, plan, 1)
		assert.Equal(t, newMatch.ID, plan[0].TransactionID)
		assert.Equal(t, Result{Assigned: 1, Conflicts: 1}, res)
	})

	t.Run("all", func(t *testing.T) {
		plan, res := PlanBulk(ModeAll, categories, txns)
		require.Len(t, plan, 3)
		assert.Equal(t, Result{Assigned: 2, Uncategorized: 1, Conflicts: 1}, res)

		after := apply(txns, plan)
		assert.Equal(t, coffee.ID, *after[0].CategoryID)
		assert.Nil(t, after[1].CategoryID)
		assert.Nil(t, after[2].CategoryID)
		assert.Equal(t, retail.ID, *after[3].CategoryID)
		assert.Equal(t, coffee.ID, *after[4].CategoryID)
	})

	t.Run("settled conflict keeps its category", func(t *testing.T) {
		settled := ref("AMAZON STARBUCKS", &coffee.ID)
		plan, res := PlanBulk(ModeAll, categories, []TransactionRef{settled})
		assert.Empty(t, plan)
		assert.Equal(t, Result{Conflicts: 1}, res)
	})

	t.Run("conflict outside the current category is demoted", func(t *testing.T) {
		groceries := newCategory("Groceries", "LIDL")
		elsewhere := ref("AMAZON STARBUCKS", &groceries.ID)
		plan, res := PlanBulk(ModeAll, append(categories, groceries), []TransactionRef{elsewhere})
		require.Len(t, plan, 1)
		assert.Nil(t, plan[0].To)
		assert.Equal(t, Result{Uncategorized: 1, Conflicts: 1}, res)
	})
}

func TestPlanBulk_Idempotent(t *testing.T) {
	coffee := newCategory("Coffee", "STARBUCKS")
	retail := newCategory("Retail", "AMAZON")
	categories := []Category{coffee, retail}
	txns := []TransactionRef{
		ref("STARBUCKS", nil),
		ref("AMAZON", &coffee.ID),
		ref("NOTHING", &retail.ID),
		ref("AMAZON STARBUCKS", nil),
	}

	for _, mode := range []Mode{ModeUncategorized, ModeAll} {
		t.Run(string(mode), func(t *testing.T) {
			first, _ := PlanBulk(mode, categories, txns)
			after := apply(txns, first)

			second, res := PlanBulk(mode, categories, after)
			assert.Empty(t, second)
			assert.Zero(t, res.Changed())
		})
	}
}

func TestPlanKeywordChange_Idempotent(t *testing.T) {
	dining := newCategory("Dining", "COSTA")
	coffee := newCategory("Coffee", "STARBUCKS")
	txns := []TransactionRef{ref("STARBUCKS", &dining.ID), ref("COSTA", nil)}
	categories := []Category{dining, coffee}

	first, _ := PlanKeywordChange(dining.ID, []string{"STARBUCKS"}, dining.Keywords, categories, txns)
	require.NotEmpty(t, first)
	after := apply(txns, first)

	second, res := PlanKeywordChange(dining.ID, dining.Keywords, dining.Keywords, categories, after)
	assert.Empty(t, second)
	assert.Zero(t, res.Changed())

	bulk, res := PlanBulk(ModeAll, categories, after)
	assert.Empty(t, bulk)
	assert.Zero(t, res.Changed())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("all")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	_, err = ParseMode("everything")
	assert.Error(t, err)
}
