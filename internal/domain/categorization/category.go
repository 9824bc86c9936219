package categorization

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// System category names.
const (
	Uncategorized = "Uncategorized"
	Excluded      = "Excluded"
	Income        = "Income"
)

// SystemCategoryNames lists the protected categories in display order.
var SystemCategoryNames = []string{Uncategorized, Excluded, Income}

var (
	ErrCategoryNotFound     = errors.New("category not found")
	ErrSystemCategory       = errors.New("system category cannot be modified")
	ErrDuplicateName        = errors.New("category name already exists")
	ErrEmptyName            = errors.New("category name is required")
	ErrEmptyKeyword         = errors.New("keyword is empty")
	ErrKeywordExists        = errors.New("keyword already exists in this category")
	ErrKeywordNotInCategory = errors.New("keyword not found in category")
)

// Category groups transactions by keyword containment.
type Category struct {
	ID           uuid.UUID `json:"id" yaml:"-"`
	Name         string    `json:"name" yaml:"name"`
	Keywords     []string  `json:"keywords" yaml:"keywords"`
	DisplayOrder int       `json:"display_order" yaml:"display_order"`
	IsSystem     bool      `json:"is_system" yaml:"-"`
}

// IsUncategorized reports whether c is the Uncategorized system category.
// It never takes part in matching.
func (c Category) IsUncategorized() bool {
	return c.IsSystem && c.Name == Uncategorized
}

// KeywordConflictError is returned when a keyword is already owned by
// another category.
type KeywordConflictError struct {
	Keyword  string
	Category string
}

func (e *KeywordConflictError) Error() string {
	return fmt.Sprintf("keyword %q already belongs to category %q", e.Keyword, e.Category)
}

// NormalizeKeywords trims keywords, drops empty ones and removes
// case-insensitive repeats while keeping the first spelling and order.
func NormalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToUpper(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}

// KeywordSetsEqual compares keyword sets ignoring order and case.
func KeywordSetsEqual(a, b []string) bool {
	fold := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, kw := range NormalizeKeywords(in) {
			out = append(out, strings.ToUpper(kw))
		}
		sort.Strings(out)
		return out
	}
	return slices.Equal(fold(a), fold(b))
}

// FindKeywordOwner returns the first category other than exclude that owns
// keyword case-insensitively.
func FindKeywordOwner(categories []Category, keyword string, exclude uuid.UUID) *Category {
	needle := strings.ToUpper(strings.TrimSpace(keyword))
	if needle == "" {
		return nil
	}
	for i := range categories {
		if categories[i].ID == exclude {
			continue
		}
		for _, kw := range categories[i].Keywords {
			if strings.ToUpper(strings.TrimSpace(kw)) == needle {
				return &categories[i]
			}
		}
	}
	return nil
}

// CheckKeywords verifies that none of keywords is owned by a category other
// than categoryID. The first violation is returned as a *KeywordConflictError.
func CheckKeywords(categories []Category, categoryID uuid.UUID, keywords []string) error {
	for _, kw := range keywords {
		if owner := FindKeywordOwner(categories, kw, categoryID); owner != nil {
			return &KeywordConflictError{Keyword: strings.TrimSpace(kw), Category: owner.Name}
		}
	}
	return nil
}

// PrepareKeywordUpdate validates a keyword replacement for target against
// the full category set and returns the normalized list to store.
func PrepareKeywordUpdate(categories []Category, target Category, keywords []string) ([]string, error) {
	if target.IsUncategorized() {
		return nil, fmt.Errorf("%w: %s", ErrSystemCategory, target.Name)
	}
	normalized := NormalizeKeywords(keywords)
	if err := CheckKeywords(categories, target.ID, normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// AppendKeyword validates keyword for target and returns the new keyword list.
// Ownership by another category is checked before repeats within target.
func AppendKeyword(categories []Category, target Category, keyword string) ([]string, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}
	if target.IsUncategorized() {
		return nil, fmt.Errorf("%w: %s", ErrSystemCategory, target.Name)
	}
	if err := CheckKeywords(categories, target.ID, []string{keyword}); err != nil {
		return nil, err
	}
	for _, kw := range target.Keywords {
		if strings.EqualFold(strings.TrimSpace(kw), keyword) {
			return nil, fmt.Errorf("%w: %q", ErrKeywordExists, keyword)
		}
	}
	return append(slices.Clone(target.Keywords), keyword), nil
}

// RemoveKeyword returns target's keywords without keyword (case-insensitive).
func RemoveKeyword(target Category, keyword string) ([]string, error) {
	keyword = strings.TrimSpace(keyword)
	out := make([]string, 0, len(target.Keywords))
	found := false
	for _, kw := range target.Keywords {
		if strings.EqualFold(strings.TrimSpace(kw), keyword) {
			found = true
			continue
		}
		out = append(out, kw)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrKeywordNotInCategory, keyword)
	}
	return out, nil
}

// FindByID returns the category with id, or nil.
func FindByID(categories []Category, id uuid.UUID) *Category {
	for i := range categories {
		if categories[i].ID == id {
			return &categories[i]
		}
	}
	return nil
}

// FindByName returns the category named name (case-insensitive), or nil.
func FindByName(categories []Category, name string) *Category {
	name = strings.TrimSpace(name)
	for i := range categories {
		if strings.EqualFold(categories[i].Name, name) {
			return &categories[i]
		}
	}
	return nil
}

// SortByDisplayOrder orders categories by DisplayOrder, then name.
func SortByDisplayOrder(categories []Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].DisplayOrder != categories[j].DisplayOrder {
			return categories[i].DisplayOrder < categories[j].DisplayOrder
		}
		return categories[i].Name < categories[j].Name
	})
}
