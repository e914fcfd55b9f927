// Package store is the durable inventory and alert persistence layer. The
// store owns the atomicity guarantees the upper stages rely on: upserts by
// match key and alert creation per (item, level) are transactional, so the
// fusion and alert logic above it stays lock-free.
package store

import (
	"context"
	"time"

	"github.com/pantrysense/pantry-cli/internal/model"
)

// UpsertOutcome describes what an upsert did.
type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged" // same-session replay
	OutcomeFlagged   UpsertOutcome = "flagged"   // ambiguous match, created for review
)

// ItemFilter selects inventory items.
type ItemFilter struct {
	Status          model.Status   `json:"status,omitempty"`
	Category        model.Category `json:"category,omitempty"`
	Location        string         `json:"location,omitempty"`
	ExpiringWithin  int            `json:"expiring_within,omitempty"` // days; 0 = no bound
	IncludeConsumed bool           `json:"include_consumed,omitempty"`
	Limit           int            `json:"limit,omitempty"`
}

// AlertFilter selects alerts.
type AlertFilter struct {
	FoodItemID string           `json:"food_item_id,omitempty"`
	Level      model.AlertLevel `json:"level,omitempty"`
	State      model.AlertState `json:"state,omitempty"`
	OpenOnly   bool             `json:"open_only,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

// Store defines persistence for the detection-fusion and alert engine.
// Every method honors context cancellation; write methods are atomic (no
// partially applied item updates).
type Store interface {
	// UpsertItem applies a fused record against current inventory inside
	// one transaction: a single active match on (normalized name, category,
	// location) updated within the retention window is merged, no match
	// creates a new item, several equally plausible matches create a new
	// item flagged for review. Replaying a session the item has already
	// absorbed returns OutcomeUnchanged.
	UpsertItem(ctx context.Context, rec model.FusedRecord, retention time.Duration, now time.Time) (*model.FoodItem, UpsertOutcome, error)

	GetItem(ctx context.Context, id string) (*model.FoodItem, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]model.FoodItem, error)
	UpdateItemStatus(ctx context.Context, id string, status model.Status) error

	// ConsumeItem terminates an item: marks it consumed and archives it
	// into consumption history in the same transaction.
	ConsumeItem(ctx context.Context, id string, wasExpired bool, now time.Time) error

	// CreateAlertIfAbsent inserts the alert unless an alert in an open
	// state already exists for the same (item, level). Returns false when
	// the insert was suppressed.
	CreateAlertIfAbsent(ctx context.Context, alert model.Alert) (bool, error)
	GetAlert(ctx context.Context, id string) (*model.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	UpdateAlertState(ctx context.Context, id string, state model.AlertState) error

	// ResolveItemAlerts resolves every alert of the item regardless of
	// state; levels restricts the sweep when non-empty. Returns the number
	// of alerts transitioned.
	ResolveItemAlerts(ctx context.Context, itemID string, levels ...model.AlertLevel) (int, error)

	// MarkNotificationFailed records a delivery failure for one channel
	// without touching the alert's lifecycle state.
	MarkNotificationFailed(ctx context.Context, alertID, channel string) error

	WasteStats(ctx context.Context, lookbackDays int) (*model.WasteStats, error)

	Migrate(ctx context.Context) error
	Close() error
}

// newItemFromRecord builds a fresh FoodItem from a fused record. Shared by
// both drivers so create semantics cannot drift.
func newItemFromRecord(id string, rec model.FusedRecord, now time.Time, review bool) *model.FoodItem {
	now = now.UTC()
	quantity := rec.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	return &model.FoodItem{
		ID:             id,
		Name:           rec.Name,
		NormalizedName: rec.NormalizedKey,
		Category:       rec.Category,
		Quantity:       quantity,
		Unit:           rec.Unit,
		Location:       rec.Location,
		Barcode:        rec.Barcode,
		ExpiryDate:     rec.ExpiryDate,
		ExpirySource:   rec.ExpirySource,
		Status:         model.StatusFresh,
		Confidence:     rec.Confidence,
		ReviewRequired: rec.LowConfidence || review,
		LastSessionID:  rec.SessionID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// expirySourceRank orders expiry sources by the fusion priority chain, so
// merges between an existing item and a new record keep the stronger date.
func expirySourceRank(source string) int {
	switch source {
	case "manual":
		return 4
	case "ocr":
		return 3
	case "barcode":
		return 2
	case "shelf_life":
		return 1
	default:
		return 0
	}
}

// mergeItemRecord folds a fused record into an existing matched item:
// quantities sum, the expiry date refreshes through the same priority chain
// fusion used, confidence keeps the max, updated_at bumps. The merge is
// pure; callers persist the result atomically.
func mergeItemRecord(item *model.FoodItem, rec model.FusedRecord, now time.Time) *model.FoodItem {
	merged := *item
	if rec.Quantity > 0 {
		merged.Quantity += rec.Quantity
	}
	if rec.Name != "" {
		merged.Name = rec.Name
	}
	if rec.Barcode != "" {
		merged.Barcode = rec.Barcode
	}
	if !rec.ExpiryDate.IsZero() && expirySourceRank(rec.ExpirySource) >= expirySourceRank(merged.ExpirySource) {
		merged.ExpiryDate = rec.ExpiryDate
		merged.ExpirySource = rec.ExpirySource
	}
	if rec.Confidence > merged.Confidence {
		merged.Confidence = rec.Confidence
	}
	merged.ReviewRequired = merged.ReviewRequired || rec.LowConfidence
	merged.LastSessionID = rec.SessionID
	merged.UpdatedAt = now.UTC()
	return &merged
}
