// Package pipeline wires detection input through fusion, reconciliation,
// alert evaluation, and notification dispatch.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/alert"
	"github.com/pantrysense/pantry-cli/internal/fusion"
	"github.com/pantrysense/pantry-cli/internal/inventory"
	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/normalize"
	"github.com/pantrysense/pantry-cli/internal/notify"
	"github.com/pantrysense/pantry-cli/internal/store"
)

// ScanReport summarizes one processed scan session.
type ScanReport struct {
	SessionID     string             `json:"session_id"`
	Candidates    int                `json:"candidates"`
	Fused         int                `json:"fused"`
	Results       []inventory.Result `json:"-"`
	Created       int                `json:"created"`
	Updated       int                `json:"updated"`
	Flagged       int                `json:"flagged"`
	AlertsCreated int                `json:"alerts_created"`
}

// Pipeline is the scan-to-notification flow. Both entry points (Scan and
// Tick) may run concurrently; serialization happens inside the
// reconciler and the store.
type Pipeline struct {
	store      store.Store
	normalizer *normalize.Normalizer
	resolver   *fusion.Resolver
	reconciler *inventory.Reconciler
	engine     *alert.Engine
	dispatcher *notify.Dispatcher
}

func New(
	st store.Store,
	normalizer *normalize.Normalizer,
	resolver *fusion.Resolver,
	reconciler *inventory.Reconciler,
	engine *alert.Engine,
	dispatcher *notify.Dispatcher,
) *Pipeline {
	return &Pipeline{
		store:      st,
		normalizer: normalizer,
		resolver:   resolver,
		reconciler: reconciler,
		engine:     engine,
		dispatcher: dispatcher,
	}
}

// Scan processes one detection session end to end: normalize raw
// detections, fuse them into records, reconcile into inventory, then
// evaluate and dispatch alerts for the touched items.
func (p *Pipeline) Scan(ctx context.Context, session model.ScanSession, raws []normalize.RawDetection) (*ScanReport, error) {
	if session.Timestamp.IsZero() {
		session.Timestamp = time.Now().UTC()
	}

	candidates := make([]model.DetectionCandidate, 0, len(raws))
	for _, raw := range raws {
		if c, ok := p.normalizer.Candidate(session, raw); ok {
			candidates = append(candidates, c)
		}
	}

	records := p.resolver.Resolve(session, candidates)
	report := &ScanReport{
		SessionID:  session.ID,
		Candidates: len(candidates),
		Fused:      len(records),
	}

	results, err := p.reconciler.Apply(ctx, records, session.Timestamp)
	report.Results = results
	for _, res := range results {
		switch res.Outcome {
		case store.OutcomeCreated:
			report.Created++
		case store.OutcomeUpdated:
			report.Updated++
		case store.OutcomeFlagged:
			report.Flagged++
		}
	}
	if err != nil {
		return report, eris.Wrapf(err, "pipeline: scan session %s", session.ID)
	}

	var created []model.Alert
	for _, res := range results {
		alerts, err := p.engine.Evaluate(ctx, res.Item, session.Timestamp)
		if err != nil {
			return report, eris.Wrapf(err, "pipeline: evaluate item %s", res.Item.ID)
		}
		created = append(created, alerts...)
	}
	report.AlertsCreated = len(created)

	if err := p.dispatch(ctx, created); err != nil {
		return report, err
	}

	zap.L().Info("scan session processed",
		zap.String("session_id", session.ID),
		zap.Int("candidates", report.Candidates),
		zap.Int("fused", report.Fused),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("flagged", report.Flagged),
		zap.Int("alerts", report.AlertsCreated),
	)
	return report, nil
}

// Tick re-evaluates the whole active inventory and dispatches any new
// alerts. Fired by the scheduler.
func (p *Pipeline) Tick(ctx context.Context, now time.Time) error {
	created, err := p.engine.EvaluateAll(ctx, now)
	if err != nil {
		return eris.Wrap(err, "pipeline: tick evaluation")
	}
	if len(created) > 0 {
		zap.L().Info("tick produced alerts", zap.Int("count", len(created)))
	}
	return p.dispatch(ctx, created)
}

// Consume marks an item consumed and resolves its alerts.
func (p *Pipeline) Consume(ctx context.Context, itemID string, now time.Time) error {
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	wasExpired := item.Status == model.StatusExpired
	if err := p.store.ConsumeItem(ctx, itemID, wasExpired, now); err != nil {
		return err
	}
	_, err = p.engine.ResolveForItem(ctx, itemID)
	return err
}

func (p *Pipeline) dispatch(ctx context.Context, alerts []model.Alert) error {
	if p.dispatcher == nil || len(alerts) == 0 {
		return nil
	}
	return p.dispatcher.Dispatch(ctx, alerts)
}
