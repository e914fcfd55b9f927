// Package inventory reconciles fused detection records into the stored
// food-item inventory.
package inventory

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/store"
)

// DefaultRetention is how far back a stored item still counts as a match
// for an incoming record with the same key.
const DefaultRetention = 48 * time.Hour

// Result describes what reconciliation did with one record.
type Result struct {
	Item    *model.FoodItem
	Outcome store.UpsertOutcome
}

// Reconciler applies fused records to the store. Records that share a
// match key are serialized so concurrent scans cannot double-create.
type Reconciler struct {
	store     store.Store
	retention time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewReconciler(st store.Store, retention time.Duration) *Reconciler {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Reconciler{
		store:     st,
		retention: retention,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Apply reconciles a batch of fused records, replaying record order.
// A failed record aborts the batch; earlier records stay applied, which
// is safe because a rerun of the same session is idempotent.
func (r *Reconciler) Apply(ctx context.Context, records []model.FusedRecord, now time.Time) ([]Result, error) {
	results := make([]Result, 0, len(records))
	for _, rec := range records {
		res, err := r.applyOne(ctx, rec, now)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Reconciler) applyOne(ctx context.Context, rec model.FusedRecord, now time.Time) (Result, error) {
	key := model.MatchKey{
		NormalizedName: rec.NormalizedKey,
		Category:       rec.Category,
		Location:       rec.Location,
	}.String()

	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	item, outcome, err := r.store.UpsertItem(ctx, rec, r.retention, now)
	if err != nil {
		return Result{}, eris.Wrapf(err, "inventory: reconcile %q", rec.Name)
	}

	switch outcome {
	case store.OutcomeFlagged:
		zap.L().Warn("ambiguous inventory match, item flagged for review",
			zap.String("item_id", item.ID),
			zap.String("match_key", key),
		)
	case store.OutcomeUnchanged:
		zap.L().Debug("session already reconciled",
			zap.String("item_id", item.ID),
			zap.String("session_id", rec.SessionID),
		)
	default:
		zap.L().Debug("inventory reconciled",
			zap.String("item_id", item.ID),
			zap.String("outcome", string(outcome)),
			zap.Int("quantity", item.Quantity),
		)
	}

	return Result{Item: item, Outcome: outcome}, nil
}

func (r *Reconciler) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}
