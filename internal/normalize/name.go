package normalize

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/pantrysense/pantry-cli/internal/model"
)

var folder = cases.Fold()

// Name reduces a raw label to a case- and pluralization-insensitive key
// used for clustering and inventory matching.
func Name(label string) string {
	s := folder.String(strings.TrimSpace(label))
	s = strings.Join(strings.Fields(s), " ")
	return singular(s)
}

// singular strips a trailing plural suffix. Deliberately naive: the goal is
// that "tomatoes" and "tomato" share a key, not linguistic correctness.
func singular(s string) string {
	switch {
	case len(s) > 4 && strings.HasSuffix(s, "oes"):
		return s[:len(s)-2]
	case len(s) > 4 && strings.HasSuffix(s, "ies"):
		return s[:len(s)-3] + "y"
	case len(s) > 3 && strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return s[:len(s)-1]
	default:
		return s
	}
}

// categoryKeywords maps label substrings to categories for detections that
// arrive without one.
var categoryKeywords = map[model.Category][]string{
	model.CategoryVegetables: {"carrot", "broccoli", "lettuce", "tomato", "cucumber", "spinach", "potato", "onion", "pepper"},
	model.CategoryFruits:     {"apple", "banana", "orange", "strawberry", "grape", "mango", "watermelon", "lemon"},
	model.CategoryDairy:      {"milk", "cheese", "yogurt", "butter", "cream"},
	model.CategoryMeat:       {"chicken", "beef", "pork", "lamb", "turkey", "sausage", "ham"},
	model.CategorySeafood:    {"fish", "salmon", "tuna", "shrimp", "crab"},
	model.CategoryBeverages:  {"juice", "soda", "water", "beer", "wine"},
	model.CategoryCondiments: {"ketchup", "mustard", "mayo", "sauce", "jam"},
	model.CategoryFrozen:     {"frozen", "ice cream"},
}

// CategoryFor guesses a category from a normalized name. Returns
// Uncategorized when no keyword matches.
func CategoryFor(normalizedName string) model.Category {
	for _, cat := range model.Categories {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(normalizedName, kw) {
				return cat
			}
		}
	}
	return model.CategoryUncategorized
}
