// Package scheduler supplies the periodic re-evaluation tick.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TickFunc is invoked once per scheduler tick with the tick time.
type TickFunc func(ctx context.Context, now time.Time) error

// Scheduler runs a cancellable periodic tick loop.
type Scheduler struct {
	interval time.Duration
	tick     TickFunc
}

func New(interval time.Duration, tick TickFunc) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{interval: interval, tick: tick}
}

// Run fires the tick immediately, then on every interval until ctx is
// cancelled. Tick errors are logged, never fatal; the loop only stops on
// cancellation.
func (s *Scheduler) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "scheduler"))
	log.Info("starting re-evaluation loop", zap.Duration("interval", s.interval))

	s.fire(ctx, log)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("re-evaluation loop stopped")
			return
		case <-ticker.C:
			s.fire(ctx, log)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, log *zap.Logger) {
	now := time.Now()
	if err := s.tick(ctx, now); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("tick failed", zap.Error(err))
		return
	}
	log.Debug("tick complete", zap.Duration("took", time.Since(now)))
}
