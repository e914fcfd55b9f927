package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrysense/pantry-cli/internal/model"
)

func TestName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Milk", "milk"},
		{"  Whole   Milk  ", "whole milk"},
		{"TOMATOES", "tomato"},
		{"Berries", "berry"},
		{"Eggs", "egg"},
		{"Swiss Cheese", "swiss cheese"}, // trailing ss kept
		{"gas", "gas"},                   // too short to de-pluralize
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Name(tt.in), "label=%q", tt.in)
	}
}

func TestCategoryFor(t *testing.T) {
	assert.Equal(t, model.CategoryDairy, CategoryFor("whole milk"))
	assert.Equal(t, model.CategoryVegetables, CategoryFor("cherry tomato"))
	assert.Equal(t, model.CategorySeafood, CategoryFor("smoked salmon"))
	assert.Equal(t, model.CategoryFrozen, CategoryFor("frozen peas"))
	assert.Equal(t, model.CategoryUncategorized, CategoryFor("mystery box"))
}

func TestExtractDate(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		text      string
		want      time.Time
		ambiguous bool
		found     bool
	}{
		{
			name:  "exp month year",
			text:  "EXP 05/2024",
			want:  time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
			found: true,
		},
		{
			name:  "best before full date",
			text:  "best before 25/12/2024",
			want:  time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC),
			found: true,
		},
		{
			name:  "iso date",
			text:  "LOT 42 2024-06-15 FACTORY A",
			want:  time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
			found: true,
		},
		{
			name:  "month name",
			text:  "Use by 3 Jun 2024",
			want:  time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
			found: true,
		},
		{
			name:      "two distinct dates prefers earliest future",
			text:      "MFG 01/05/2024 EXP 01/08/2024",
			want:      time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
			ambiguous: true,
			found:     true,
		},
		{
			name:  "no date",
			text:  "ORGANIC WHOLE MILK 2L",
			found: false,
		},
		{
			name:  "empty",
			text:  "   ",
			found: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ambiguous, found := ExtractDate(tt.text, now)
			assert.Equal(t, tt.found, found)
			if !tt.found {
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ambiguous, ambiguous)
		})
	}
}

func TestExtractDate_AllPastKeepsEarliest(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ambiguous, found := ExtractDate("MFG 01/03/2024 EXP 01/06/2024", now)
	require.True(t, found)
	assert.True(t, ambiguous)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestCandidate_ConfidenceFloor(t *testing.T) {
	n := New(0.5)
	sess := model.ScanSession{ID: "s1", Timestamp: time.Now()}

	_, ok := n.Candidate(sess, RawDetection{
		Modality:   model.ModalityVision,
		Label:      "Milk",
		Confidence: 0.2,
	})
	assert.False(t, ok)

	c, ok := n.Candidate(sess, RawDetection{
		Modality:   model.ModalityVision,
		Label:      "Milk",
		Confidence: 0.8,
	})
	require.True(t, ok)
	assert.Equal(t, 0.8, c.Confidence)
	assert.Equal(t, "milk", c.NormalizedKey)
}

func TestCandidate_ZeroFloorKeepsEverything(t *testing.T) {
	n := New(0)
	sess := model.ScanSession{ID: "s1", Timestamp: time.Now()}

	c, ok := n.Candidate(sess, RawDetection{
		Modality: model.ModalityVision,
		Label:    "Milk",
	})
	require.True(t, ok)
	assert.Equal(t, 0.0, c.Confidence)
}

func TestCandidate_BarcodeAndManualAreAuthoritative(t *testing.T) {
	n := New(0.5)
	sess := model.ScanSession{ID: "s1", Timestamp: time.Now()}

	c, ok := n.Candidate(sess, RawDetection{
		Modality: model.ModalityBarcode,
		Label:    "Milk",
		Barcode:  "4006381333931",
	})
	require.True(t, ok)
	assert.Equal(t, 1.0, c.Confidence)

	c, ok = n.Candidate(sess, RawDetection{
		Modality: model.ModalityManual,
		Label:    "Leftover Soup",
		Quantity: 2,
	})
	require.True(t, ok)
	assert.Equal(t, 1.0, c.Confidence)
	assert.Equal(t, 2, c.Quantity)
}

func TestCandidate_OCRParsesDate(t *testing.T) {
	now := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	n := New(0).WithClock(func() time.Time { return now })
	sess := model.ScanSession{ID: "s1", Timestamp: now}

	c, ok := n.Candidate(sess, RawDetection{
		Modality:   model.ModalityOCR,
		Text:       "EXP 05/2024",
		Confidence: 0.7,
	})
	require.True(t, ok)
	require.NotNil(t, c.ParsedDate)
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), *c.ParsedDate)
	assert.False(t, c.AmbiguousDate)

	c, ok = n.Candidate(sess, RawDetection{
		Modality:   model.ModalityOCR,
		Text:       "NO DATE HERE",
		Confidence: 0.7,
	})
	require.True(t, ok)
	assert.Nil(t, c.ParsedDate)
}
