// Package alert drives the per-item, per-level alert state machine.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/expiry"
	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/store"
)

// allLevels in ascending urgency.
var allLevels = []model.AlertLevel{
	model.AlertLevelNormal,
	model.AlertLevelWarning,
	model.AlertLevelCritical,
}

// Engine recomputes item statuses and applies alert transitions. The
// one-open-alert-per-(item, level) invariant is enforced by the store's
// conditional insert, so Evaluate is safe under concurrent ticks.
type Engine struct {
	store      store.Store
	thresholds expiry.ThresholdTable
}

func NewEngine(st store.Store, thresholds expiry.ThresholdTable) *Engine {
	return &Engine{store: st, thresholds: thresholds}
}

// Evaluate recomputes one item's status and reconciles its alerts.
// It returns the alerts newly created by this call, ready for dispatch.
func (e *Engine) Evaluate(ctx context.Context, item *model.FoodItem, now time.Time) ([]model.Alert, error) {
	if !item.Active() {
		return nil, nil
	}

	remaining := expiry.RemainingDays(item, now)
	status := expiry.Classify(remaining, e.thresholds.For(item.Category))

	if status != item.Status {
		if err := e.store.UpdateItemStatus(ctx, item.ID, status); err != nil {
			return nil, eris.Wrapf(err, "alert: update status for %s", item.ID)
		}
		zap.L().Info("item status changed",
			zap.String("item_id", item.ID),
			zap.String("name", item.Name),
			zap.String("from", string(item.Status)),
			zap.String("to", string(status)),
		)
		item.Status = status
	}

	level, alertable := expiry.LevelFor(status)

	// Levels the item no longer reaches resolve automatically; levels it
	// passed through on the way down stay open (a warning alert coexists
	// with a later critical one).
	if unreached := unreachedLevels(level, alertable); len(unreached) > 0 {
		if _, err := e.store.ResolveItemAlerts(ctx, item.ID, unreached...); err != nil {
			return nil, eris.Wrapf(err, "alert: resolve unreached levels for %s", item.ID)
		}
	}

	if !alertable || !level.AtLeast(model.AlertLevelWarning) {
		return nil, nil
	}

	a := model.Alert{
		ID:         uuid.New().String(),
		FoodItemID: item.ID,
		FoodName:   item.Name,
		Level:      level,
		Message:    Message(item.Name, status, remaining),
		State:      model.AlertStateActive,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
	created, err := e.store.CreateAlertIfAbsent(ctx, a)
	if err != nil {
		return nil, eris.Wrapf(err, "alert: create for %s", item.ID)
	}
	if !created {
		return nil, nil
	}

	zap.L().Info("alert created",
		zap.String("alert_id", a.ID),
		zap.String("item_id", item.ID),
		zap.String("level", string(level)),
	)
	return []model.Alert{a}, nil
}

// EvaluateAll runs Evaluate over every active item. Used by the periodic
// tick. Per-item failures are logged and skipped so one bad row cannot
// stall the sweep.
func (e *Engine) EvaluateAll(ctx context.Context, now time.Time) ([]model.Alert, error) {
	items, err := e.store.ListItems(ctx, store.ItemFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "alert: list items for evaluation")
	}

	var created []model.Alert
	for i := range items {
		alerts, err := e.Evaluate(ctx, &items[i], now)
		if err != nil {
			if ctx.Err() != nil {
				return created, err
			}
			zap.L().Error("item evaluation failed",
				zap.String("item_id", items[i].ID),
				zap.Error(err),
			)
			continue
		}
		created = append(created, alerts...)
	}
	return created, nil
}

// Acknowledge moves an active alert to acknowledged. Acknowledged and
// resolved alerts are left alone.
func (e *Engine) Acknowledge(ctx context.Context, alertID string) error {
	a, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}
	if a.State != model.AlertStateActive {
		return eris.Errorf("alert: cannot acknowledge alert %s in state %q", alertID, a.State)
	}
	return e.store.UpdateAlertState(ctx, alertID, model.AlertStateAcknowledged)
}

// ResolveForItem resolves every alert for an item regardless of state.
// Called when the item is consumed or removed.
func (e *Engine) ResolveForItem(ctx context.Context, itemID string) (int, error) {
	n, err := e.store.ResolveItemAlerts(ctx, itemID)
	if err != nil {
		return 0, eris.Wrapf(err, "alert: resolve all for %s", itemID)
	}
	if n > 0 {
		zap.L().Info("alerts resolved",
			zap.String("item_id", itemID),
			zap.Int("count", n),
		)
	}
	return n, nil
}

// unreachedLevels returns the levels strictly above the current one, or
// every level when the item is not alertable at all.
func unreachedLevels(current model.AlertLevel, alertable bool) []model.AlertLevel {
	var out []model.AlertLevel
	for _, l := range allLevels {
		if !alertable || !current.AtLeast(l) {
			out = append(out, l)
		}
	}
	return out
}

// Message renders the user-facing alert text.
func Message(name string, status model.Status, remaining int) string {
	switch {
	case status == model.StatusExpired:
		days := -remaining
		return fmt.Sprintf("%s has EXPIRED %d day(s) ago", name, days)
	case remaining == 0:
		return fmt.Sprintf("%s expires TODAY!", name)
	default:
		return fmt.Sprintf("%s expires in %d day(s)", name, remaining)
	}
}
