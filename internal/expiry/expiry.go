// Package expiry holds the pure time arithmetic of the engine: remaining
// days and the urgency classification derived from them. Everything here is
// side-effect free and safe to call concurrently on snapshots.
package expiry

import (
	"time"

	"github.com/pantrysense/pantry-cli/internal/model"
)

// Thresholds are remaining-day boundaries for each urgency band.
type Thresholds struct {
	Critical int `yaml:"critical" mapstructure:"critical"`
	Warning  int `yaml:"warning" mapstructure:"warning"`
	Normal   int `yaml:"normal" mapstructure:"normal"`
}

// DefaultThresholds returns the stock 1/3/7 day bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 1, Warning: 3, Normal: 7}
}

// Monotonic reports whether the bands are ordered so that fewer remaining
// days can never map to a less urgent status.
func (t Thresholds) Monotonic() bool {
	return t.Critical >= 0 && t.Critical <= t.Warning && t.Warning <= t.Normal
}

// ThresholdTable layers per-category threshold overrides over a base.
type ThresholdTable struct {
	Base        Thresholds
	PerCategory map[model.Category]Thresholds
}

// For returns the thresholds in effect for a category.
func (tt ThresholdTable) For(c model.Category) Thresholds {
	if t, ok := tt.PerCategory[c]; ok {
		return t
	}
	return tt.Base
}

// DefaultShelfLife maps categories to fallback shelf life in days, applied
// when no explicit or inferred expiry date exists.
var DefaultShelfLife = map[model.Category]int{
	model.CategoryVegetables:    7,
	model.CategoryFruits:        5,
	model.CategoryDairy:         7,
	model.CategoryMeat:          3,
	model.CategorySeafood:       2,
	model.CategoryBeverages:     30,
	model.CategoryCondiments:    180,
	model.CategoryLeftovers:     3,
	model.CategoryFrozen:        90,
	model.CategoryUncategorized: 7,
}

// ShelfLifeDays returns the shelf life for a category from overrides first,
// then the defaults, then 7 days.
func ShelfLifeDays(category model.Category, overrides map[model.Category]int) int {
	if d, ok := overrides[category]; ok && d > 0 {
		return d
	}
	if d, ok := DefaultShelfLife[category]; ok {
		return d
	}
	return 7
}

// RemainingDays computes floor(days between now and the item's expiry
// date) at UTC day granularity. Negative for expired items.
func RemainingDays(item *model.FoodItem, now time.Time) int {
	return int(dayUTC(item.ExpiryDate).Sub(dayUTC(now)).Hours() / 24)
}

// Classify maps remaining days to a status. The mapping is strictly
// monotonic in remaining days.
func Classify(remainingDays int, t Thresholds) model.Status {
	switch {
	case remainingDays < 0:
		return model.StatusExpired
	case remainingDays <= t.Critical:
		return model.StatusCritical
	case remainingDays <= t.Warning:
		return model.StatusWarning
	case remainingDays <= t.Normal:
		return model.StatusNormal
	default:
		return model.StatusFresh
	}
}

// LevelFor maps a status to the alert level it triggers. The second return
// is false for statuses below the alerting floor.
func LevelFor(status model.Status) (model.AlertLevel, bool) {
	switch status {
	case model.StatusExpired, model.StatusCritical:
		return model.AlertLevelCritical, true
	case model.StatusWarning:
		return model.AlertLevelWarning, true
	case model.StatusNormal:
		return model.AlertLevelNormal, true
	default:
		return "", false
	}
}

func dayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
