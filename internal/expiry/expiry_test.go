package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pantrysense/pantry-cli/internal/model"
)

func TestRemainingDays(t *testing.T) {
	now := time.Date(2024, 5, 29, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"five days out", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), 5},
		{"same day late evening", time.Date(2024, 5, 29, 23, 59, 0, 0, time.UTC), 0},
		{"tomorrow morning", time.Date(2024, 5, 30, 1, 0, 0, 0, time.UTC), 1},
		{"yesterday", time.Date(2024, 5, 28, 12, 0, 0, 0, time.UTC), -1},
		{"week past", time.Date(2024, 5, 22, 0, 0, 0, 0, time.UTC), -7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &model.FoodItem{ExpiryDate: tt.expiry}
			assert.Equal(t, tt.want, RemainingDays(item, now))
		})
	}
}

func TestRemainingDays_TimezoneIndependent(t *testing.T) {
	// Day arithmetic is done in UTC regardless of the wall clock zone.
	loc := time.FixedZone("UTC+9", 9*3600)
	now := time.Date(2024, 5, 30, 3, 0, 0, 0, loc) // 2024-05-29 18:00 UTC
	item := &model.FoodItem{ExpiryDate: time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, 2, RemainingDays(item, now))
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		remaining int
		want      model.Status
	}{
		{-1, model.StatusExpired},
		{-100, model.StatusExpired},
		{0, model.StatusCritical},
		{1, model.StatusCritical},
		{2, model.StatusWarning},
		{3, model.StatusWarning},
		{4, model.StatusNormal},
		{7, model.StatusNormal},
		{8, model.StatusFresh},
		{365, model.StatusFresh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.remaining, th), "remaining=%d", tt.remaining)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	th := DefaultThresholds()
	urgency := map[model.Status]int{
		model.StatusFresh:    0,
		model.StatusNormal:   1,
		model.StatusWarning:  2,
		model.StatusCritical: 3,
		model.StatusExpired:  4,
	}

	prev := Classify(30, th)
	for remaining := 29; remaining >= -30; remaining-- {
		cur := Classify(remaining, th)
		assert.GreaterOrEqual(t, urgency[cur], urgency[prev],
			"urgency dropped between %d and %d days", remaining+1, remaining)
		prev = cur
	}
}

func TestThresholds_Monotonic(t *testing.T) {
	assert.True(t, DefaultThresholds().Monotonic())
	assert.True(t, Thresholds{Critical: 0, Warning: 0, Normal: 0}.Monotonic())
	assert.False(t, Thresholds{Critical: 5, Warning: 3, Normal: 7}.Monotonic())
	assert.False(t, Thresholds{Critical: -1, Warning: 3, Normal: 7}.Monotonic())
}

func TestThresholdTable_For(t *testing.T) {
	tt := ThresholdTable{
		Base: DefaultThresholds(),
		PerCategory: map[model.Category]Thresholds{
			model.CategorySeafood: {Critical: 0, Warning: 1, Normal: 2},
		},
	}
	assert.Equal(t, Thresholds{Critical: 0, Warning: 1, Normal: 2}, tt.For(model.CategorySeafood))
	assert.Equal(t, DefaultThresholds(), tt.For(model.CategoryDairy))
}

func TestShelfLifeDays(t *testing.T) {
	assert.Equal(t, 2, ShelfLifeDays(model.CategorySeafood, nil))
	assert.Equal(t, 180, ShelfLifeDays(model.CategoryCondiments, nil))
	assert.Equal(t, 7, ShelfLifeDays(model.Category("Unknown"), nil))

	overrides := map[model.Category]int{model.CategorySeafood: 4}
	assert.Equal(t, 4, ShelfLifeDays(model.CategorySeafood, overrides))
	assert.Equal(t, 3, ShelfLifeDays(model.CategoryMeat, overrides))
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		status    model.Status
		wantLevel model.AlertLevel
		wantOK    bool
	}{
		{model.StatusExpired, model.AlertLevelCritical, true},
		{model.StatusCritical, model.AlertLevelCritical, true},
		{model.StatusWarning, model.AlertLevelWarning, true},
		{model.StatusNormal, model.AlertLevelNormal, true},
		{model.StatusFresh, "", false},
		{model.StatusConsumed, "", false},
	}
	for _, tt := range tests {
		level, ok := LevelFor(tt.status)
		assert.Equal(t, tt.wantOK, ok, "status=%s", tt.status)
		assert.Equal(t, tt.wantLevel, level, "status=%s", tt.status)
	}
}
