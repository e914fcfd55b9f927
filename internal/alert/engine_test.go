package alert

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantrysense/pantry-cli/internal/expiry"
	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewEngine(st, expiry.ThresholdTable{Base: expiry.DefaultThresholds()}), st
}

func seedItem(t *testing.T, st store.Store, name string, expiresInDays int) *model.FoodItem {
	t.Helper()
	item, _, err := st.UpsertItem(context.Background(), model.FusedRecord{
		SessionID:     "seed-" + name,
		Name:          name,
		NormalizedKey: name,
		Category:      model.CategoryDairy,
		Quantity:      1,
		Unit:          "piece",
		Location:      "main_compartment",
		ExpiryDate:    time.Now().UTC().AddDate(0, 0, expiresInDays),
		ExpirySource:  "ocr",
		Confidence:    0.9,
	}, 48*time.Hour, time.Now())
	require.NoError(t, err)
	return item
}

func TestEngine_Evaluate_CreatesWarningAlert(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	item := seedItem(t, st, "milk", 2)
	created, err := eng.Evaluate(ctx, item, now)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.AlertLevelWarning, created[0].Level)
	assert.Equal(t, "milk expires in 2 day(s)", created[0].Message)

	got, err := st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWarning, got.Status)
}

func TestEngine_Evaluate_FreshItemNoAlert(t *testing.T) {
	eng, st := newTestEngine(t)

	item := seedItem(t, st, "juice", 20)
	created, err := eng.Evaluate(context.Background(), item, time.Now())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestEngine_Evaluate_NormalStatusNoAlert(t *testing.T) {
	eng, st := newTestEngine(t)

	// 5 days remaining is inside the normal threshold but below warning.
	item := seedItem(t, st, "yogurt", 5)
	created, err := eng.Evaluate(context.Background(), item, time.Now())
	require.NoError(t, err)
	assert.Empty(t, created)

	got, err := st.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNormal, got.Status)
}

func TestEngine_Evaluate_ExpiredMessage(t *testing.T) {
	eng, st := newTestEngine(t)

	item := seedItem(t, st, "cheese", -3)
	created, err := eng.Evaluate(context.Background(), item, time.Now())
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.AlertLevelCritical, created[0].Level)
	assert.Equal(t, "cheese has EXPIRED 3 day(s) ago", created[0].Message)
}

func TestEngine_Evaluate_Idempotent(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	item := seedItem(t, st, "milk", 2)
	created, err := eng.Evaluate(ctx, item, now)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// A second tick at the same level produces nothing new.
	item, err = st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	created, err = eng.Evaluate(ctx, item, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestEngine_Evaluate_WarningAndCriticalCoexist(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	item := seedItem(t, st, "milk", 2)
	_, err := eng.Evaluate(ctx, item, now)
	require.NoError(t, err)

	// Two days later the item crosses into critical. The warning alert
	// stays open alongside the new critical one.
	item, err = st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	created, err := eng.Evaluate(ctx, item, now.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.AlertLevelCritical, created[0].Level)

	open, err := st.ListAlerts(ctx, store.AlertFilter{FoodItemID: item.ID, OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestEngine_Evaluate_ImprovedDateResolvesUnreachedLevels(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	item := seedItem(t, st, "milk", 0)
	_, err := eng.Evaluate(ctx, item, now)
	require.NoError(t, err)

	open, err := st.ListAlerts(ctx, store.AlertFilter{FoodItemID: item.ID, OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, model.AlertLevelCritical, open[0].Level)

	// A corrected expiry date drops the item back to warning; the
	// critical alert is no longer reached and resolves.
	item, err = st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	item.ExpiryDate = now.UTC().AddDate(0, 0, 3)
	created, err := eng.Evaluate(ctx, item, now)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, model.AlertLevelWarning, created[0].Level)

	open, err = st.ListAlerts(ctx, store.AlertFilter{FoodItemID: item.ID, OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.AlertLevelWarning, open[0].Level)
}

func TestEngine_Evaluate_ConcurrentTicksDedup(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	item := seedItem(t, st, "milk", 1)

	const n = 8
	var wg sync.WaitGroup
	counts := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot := *item
			created, err := eng.Evaluate(ctx, &snapshot, now)
			if err != nil {
				counts <- 0
				return
			}
			counts <- len(created)
		}()
	}
	wg.Wait()
	close(counts)

	total := 0
	for c := range counts {
		total += c
	}
	assert.Equal(t, 1, total)

	open, err := st.ListAlerts(ctx, store.AlertFilter{FoodItemID: item.ID, OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestEngine_Acknowledge(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	item := seedItem(t, st, "milk", 2)
	created, err := eng.Evaluate(ctx, item, time.Now())
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.NoError(t, eng.Acknowledge(ctx, created[0].ID))

	got, err := st.GetAlert(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.AlertStateAcknowledged, got.State)

	// Acknowledging twice is an error; acknowledged still suppresses
	// re-creation.
	assert.Error(t, eng.Acknowledge(ctx, created[0].ID))

	item, err = st.GetItem(ctx, item.ID)
	require.NoError(t, err)
	again, err := eng.Evaluate(ctx, item, time.Now())
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestEngine_ResolveForItem_ConsumedItemQuiet(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	item := seedItem(t, st, "milk", -1)
	_, err := eng.Evaluate(ctx, item, now)
	require.NoError(t, err)

	require.NoError(t, st.ConsumeItem(ctx, item.ID, true, now))
	n, err := eng.ResolveForItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Subsequent sweeps ignore consumed items entirely.
	created, err := eng.EvaluateAll(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, created)

	open, err := st.ListAlerts(ctx, store.AlertFilter{FoodItemID: item.ID, OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestEngine_EvaluateAll(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	now := time.Now()

	seedItem(t, st, "milk", 2)
	seedItem(t, st, "cheese", -1)
	seedItem(t, st, "juice", 30)

	created, err := eng.EvaluateAll(ctx, now)
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Milk expires in 3 day(s)", Message("Milk", model.StatusWarning, 3))
	assert.Equal(t, "Milk expires TODAY!", Message("Milk", model.StatusCritical, 0))
	assert.Equal(t, "Milk has EXPIRED 2 day(s) ago", Message("Milk", model.StatusExpired, -2))
}
