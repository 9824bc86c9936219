package categorization

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// maxSuggestDistance bounds the edit distance of a name suggestion.
const maxSuggestDistance = 3

// SuggestName returns the category name closest to input, or "" when
// nothing is close. It only helps users who mistype a category name on the
// command line; transaction matching never goes through here.
func SuggestName(input string, categories []Category) string {
	input = strings.TrimSpace(input)
	if input == "" || len(categories) == 0 {
		return ""
	}

	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = c.Name
	}

	// Abbreviations such as "groc" for "Groceries".
	if ranks := fuzzy.RankFindFold(input, names); len(ranks) > 0 {
		sort.Sort(ranks)
		return ranks[0].Target
	}

	best, bestDist := "", maxSuggestDistance+1
	for _, name := range names {
		d := fuzzy.LevenshteinDistance(strings.ToLower(input), strings.ToLower(name))
		if d < bestDist {
			best, bestDist = name, d
		}
	}
	return best
}
