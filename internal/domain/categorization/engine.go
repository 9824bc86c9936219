package categorization

import (
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"
	"github.com/google/uuid"
)

// Engine is a multi-pattern keyword matcher using the Aho-Corasick algorithm.
// Every keyword of every category is loaded into one automaton, so a single
// pass over the text reports every category with a keyword contained in it.
type Engine struct {
	matcher  *ahocorasick.Matcher
	patterns []string      // Unique uppercased keywords in matcher order
	owners   [][]uuid.UUID // Categories owning each pattern
	order    map[uuid.UUID]int
	mu       sync.RWMutex
}

// NewEngine creates an engine for the given categories.
func NewEngine(categories []Category) *Engine {
	e := &Engine{}
	e.Build(categories)
	return e
}

// Build rebuilds the automaton from categories. Uncategorized is skipped.
// A pattern shared by several categories keeps every owner so the match
// stays a set-membership test.
func (e *Engine) Build(categories []Category) {
	e.mu.Lock()
	defer e.mu.Unlock()

	patternToIndex := make(map[string]int)
	patterns := make([]string, 0)
	owners := make([][]uuid.UUID, 0)
	order := make(map[uuid.UUID]int, len(categories))

	for pos, cat := range categories {
		if cat.IsUncategorized() {
			continue
		}
		order[cat.ID] = pos
		for _, kw := range cat.Keywords {
			clean := strings.ToUpper(strings.TrimSpace(kw))
			if clean == "" {
				continue
			}
			if idx, exists := patternToIndex[clean]; exists {
				owners[idx] = appendUnique(owners[idx], cat.ID)
				continue
			}
			patternToIndex[clean] = len(patterns)
			patterns = append(patterns, clean)
			owners = append(owners, []uuid.UUID{cat.ID})
		}
	}

	e.patterns = patterns
	e.owners = owners
	e.order = order

	if len(patterns) == 0 {
		e.matcher = nil
		return
	}
	bytePatterns := make([][]byte, len(patterns))
	for i, p := range patterns {
		bytePatterns[i] = []byte(p)
	}
	e.matcher = ahocorasick.NewMatcher(bytePatterns)
}

// MatchCategories returns the distinct categories with at least one keyword
// contained in text, in category list order.
func (e *Engine) MatchCategories(text string) []uuid.UUID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matchLocked(text)
}

// MatchBatch matches many texts under a single read lock.
func (e *Engine) MatchBatch(texts []string) [][]uuid.UUID {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([][]uuid.UUID, len(texts))
	for i, text := range texts {
		results[i] = e.matchLocked(text)
	}
	return results
}

func (e *Engine) matchLocked(text string) []uuid.UUID {
	if e.matcher == nil || text == "" {
		return nil
	}
	hits := e.matcher.MatchThreadSafe([]byte(strings.ToUpper(text)))
	if len(hits) == 0 {
		return nil
	}

	var ids []uuid.UUID
	for _, idx := range hits {
		if idx < 0 || idx >= len(e.owners) {
			continue
		}
		for _, id := range e.owners[idx] {
			ids = appendUnique(ids, id)
		}
	}

	// Insertion sort by list position; match sets are tiny.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && e.order[ids[j]] < e.order[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// PatternCount returns the number of distinct keywords loaded.
func (e *Engine) PatternCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.patterns)
}

// IsEmpty returns true if the engine has no keywords loaded.
func (e *Engine) IsEmpty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.matcher == nil
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
