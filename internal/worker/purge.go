package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/contract-admin/internal/service/notification"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	pkgworker "github.com/jwalitptl/contract-admin/pkg/worker"
)

// NotificationPurgeWorker deletes notifications past the retention period.
type NotificationPurgeWorker struct {
	svc           notification.Service
	retentionDays int
	interval      time.Duration
	logger        *logger.Logger
	now           func() time.Time
}

func NewNotificationPurgeWorker(svc notification.Service, retentionDays int, interval time.Duration, log *logger.Logger) *NotificationPurgeWorker {
	return &NotificationPurgeWorker{
		svc:           svc,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        log.With("notification_purge"),
		now:           time.Now,
	}
}

func (w *NotificationPurgeWorker) Start(ctx context.Context) {
	pkgworker.NewPeriodic("notification_purge", w.interval, func(ctx context.Context) error {
		_, err := w.Cleanup(ctx)
		return err
	}, w.logger).Start(ctx, true)
}

func (w *NotificationPurgeWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().UTC().AddDate(0, 0, -w.retentionDays)

	rows, err := w.svc.Purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}

	w.logger.Info("Purged old notifications", "deleted", rows, "cutoff", cutoff)
	return rows, nil
}
