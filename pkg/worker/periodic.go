package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/contract-admin/pkg/logger"
)

// Periodic runs a task on a fixed interval until its context ends.
type Periodic struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   *logger.Logger
}

func NewPeriodic(name string, interval time.Duration, task func(ctx context.Context) error, log *logger.Logger) *Periodic {
	return &Periodic{
		name:     name,
		interval: interval,
		task:     task,
		logger:   log.With(name),
	}
}

// Start blocks. When runNow is set the task also runs once immediately.
func (w *Periodic) Start(ctx context.Context, runNow bool) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting worker", "interval", w.interval.String())
	if runNow {
		w.run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down worker")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

func (w *Periodic) run(ctx context.Context) {
	if err := w.task(ctx); err != nil {
		w.logger.Error(err, "Worker run failed")
	}
}
