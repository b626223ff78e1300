// Package notification stores per-recipient notifications and turns
// domain events into them.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/contract-admin/internal/live"
	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
	apperrors "github.com/jwalitptl/contract-admin/pkg/errors"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
	"github.com/jwalitptl/contract-admin/pkg/validator"
)

type Service interface {
	Create(ctx context.Context, n *model.Notification) (*model.Notification, error)
	List(ctx context.Context, userID int64, page, limit int) (*model.NotificationPage, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID int64, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	DeleteAll(ctx context.Context, userID int64) (int64, error)
	DeleteOlderThan(ctx context.Context, userID int64, days int) (int64, error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type service struct {
	repo      repository.NotificationRepository
	deliverer live.Deliverer
	validate  validator.Validator
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

// Option customises the service, mostly for tests.
type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func NewService(repo repository.NotificationRepository, deliverer live.Deliverer, m *metrics.Metrics, log *logger.Logger, opts ...Option) Service {
	s := &service{
		repo:      repo,
		deliverer: deliverer,
		validate: validator.New(validator.Rule{
			Tag: "notification_type",
			Check: func(v interface{}) bool {
				t, ok := v.(model.NotificationType)
				return ok && t.Known()
			},
		}),
		metrics: m,
		logger:  log.With("notification_service"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores n and pushes it to the recipient if they are connected.
// A failed push is logged only; the stored row is what counts.
func (s *service) Create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	if n.Priority == "" {
		n.Priority = model.PriorityNormal
	}
	if err := s.validate.Validate(n); err != nil {
		return nil, apperrors.BadRequest("invalid notification", err)
	}

	n.ID = uuid.New()
	n.CreatedAt = s.now().UTC()
	n.Read = false
	n.ReadAt = nil

	if err := s.repo.Create(ctx, n); err != nil {
		s.metrics.NotificationsFailed.WithLabelValues(string(n.Type)).Inc()
		s.logger.Error(err, "Failed to store notification",
			"user_id", n.UserID,
			"type", string(n.Type))
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	s.metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	if s.deliverer != nil {
		if err := s.deliverer.Deliver(ctx, n); err != nil {
			s.logger.Warn("Live push failed",
				"user_id", n.UserID,
				"notification_id", n.ID.String(),
				"error", err.Error())
		}
	}
	return n, nil
}

func (s *service) List(ctx context.Context, userID int64, page, limit int) (*model.NotificationPage, error) {
	p := model.Pagination{Page: page, Limit: limit}.Normalize()

	items, total, err := s.repo.List(ctx, userID, p.Limit, p.Offset())
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("list notifications: %w", err))
	}
	if items == nil {
		items = []*model.Notification{}
	}

	return &model.NotificationPage{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: model.TotalPages(total, p.Limit),
	}, nil
}

func (s *service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal(fmt.Errorf("count unread: %w", err))
	}
	return count, nil
}

// MarkRead is idempotent; the first read time is kept.
func (s *service) MarkRead(ctx context.Context, userID int64, id uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, userID, id, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("notification", err)
		}
		return apperrors.Internal(fmt.Errorf("mark read: %w", err))
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, apperrors.Internal(fmt.Errorf("mark all read: %w", err))
	}
	return n, nil
}

func (s *service) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, apperrors.Internal(fmt.Errorf("delete notifications: %w", err))
	}
	s.logger.Info("Notifications cleared", "user_id", userID, "deleted", n)
	return n, nil
}

func (s *service) DeleteOlderThan(ctx context.Context, userID int64, days int) (int64, error) {
	if days < 1 {
		return 0, apperrors.BadRequest("older_than_days must be at least 1", nil)
	}
	before := s.now().UTC().AddDate(0, 0, -days)
	n, err := s.repo.DeleteBefore(ctx, userID, before)
	if err != nil {
		return 0, apperrors.Internal(fmt.Errorf("delete old notifications: %w", err))
	}
	s.logger.Info("Old notifications cleared", "user_id", userID, "older_than_days", days, "deleted", n)
	return n, nil
}

// Purge removes every notification created before the cutoff.
func (s *service) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repo.Purge(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	s.metrics.NotificationsPurged.Add(float64(n))
	return n, nil
}
