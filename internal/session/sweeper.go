package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Service.Sweep on a cron schedule.
type Sweeper struct {
	svc      *Service
	schedule cron.Schedule
	logger   *slog.Logger
}

// NewSweeper parses spec as a five-field cron expression or a descriptor
// such as "@every 1m".
func NewSweeper(svc *Service, spec string, logger *slog.Logger) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", spec, err)
	}
	return &Sweeper{svc: svc, schedule: schedule, logger: logger}, nil
}

// Run sweeps at every scheduled time until ctx is done.
func (w *Sweeper) Run(ctx context.Context) error {
	for {
		now := time.Now()
		timer := time.NewTimer(w.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		n := w.svc.Sweep(ctx)
		if w.logger != nil {
			w.logger.DebugContext(ctx, "session sweep complete", "removed", n)
		}
	}
}

// Next reports when the sweep after t runs.
func (w *Sweeper) Next(t time.Time) time.Time {
	return w.schedule.Next(t)
}
