package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/internal/resilience"
)

const sendTimeout = 30 * time.Second

// FailureRecorder persists delivery failures after retries are exhausted.
type FailureRecorder interface {
	MarkNotificationFailed(ctx context.Context, alertID, channel string) error
}

// Dispatcher fans alerts out to every configured channel. Channels are
// independent: a failing channel never blocks the others, and exhausted
// retries only record a delivery failure without touching the alert's
// lifecycle state.
type Dispatcher struct {
	channels []Channel
	recorder FailureRecorder
	retry    resilience.RetryConfig
	limiters map[string]*rate.Limiter
}

func NewDispatcher(recorder FailureRecorder, channels ...Channel) *Dispatcher {
	limiters := make(map[string]*rate.Limiter, len(channels))
	for _, ch := range channels {
		// One send per second sustained, small burst for tick batches.
		limiters[ch.Name()] = rate.NewLimiter(rate.Limit(1), 5)
	}
	return &Dispatcher{
		channels: channels,
		recorder: recorder,
		retry:    resilience.DefaultRetryConfig(),
		limiters: limiters,
	}
}

// Dispatch delivers each alert on every channel concurrently. The
// returned error only reflects context cancellation; per-channel
// failures are recorded, not propagated.
func (d *Dispatcher) Dispatch(ctx context.Context, alerts []model.Alert) error {
	if len(d.channels) == 0 || len(alerts) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, a := range alerts {
		for _, ch := range d.channels {
			g.Go(func() error {
				d.deliver(ctx, ch, a)
				return ctx.Err()
			})
		}
	}
	return g.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, alert model.Alert) {
	if lim := d.limiters[ch.Name()]; lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	cfg := d.retry
	cfg.OnRetry = resilience.RetryLogger(ch.Name(), "send")

	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		return ch.Send(sendCtx, alert)
	})
	if err == nil {
		zap.L().Info("alert delivered",
			zap.String("alert_id", alert.ID),
			zap.String("channel", ch.Name()),
		)
		return
	}

	zap.L().Error("alert delivery failed",
		zap.String("alert_id", alert.ID),
		zap.String("channel", ch.Name()),
		zap.Error(err),
	)
	if recErr := d.recorder.MarkNotificationFailed(ctx, alert.ID, ch.Name()); recErr != nil {
		zap.L().Error("recording delivery failure failed",
			zap.String("alert_id", alert.ID),
			zap.String("channel", ch.Name()),
			zap.Error(recErr),
		)
	}
}
