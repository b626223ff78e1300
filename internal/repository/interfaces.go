package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/contract-admin/internal/model"
)

// ErrNotFound is returned when a lookup or targeted mutation matches no row.
var ErrNotFound = errors.New("not found")

// PaymentOverdueQuery selects payment_overdue notifications that match a
// contract and day count exactly for one recipient.
type PaymentOverdueQuery struct {
	UserID      int64
	ContractID  int64
	DaysOverdue int
	Since       time.Time
}

// All repository interfaces in one file
type (
	// NotificationRepository persists per-recipient notifications.
	NotificationRepository interface {
		Create(ctx context.Context, notification *model.Notification) error
		Get(ctx context.Context, userID int64, id uuid.UUID) (*model.Notification, error)
		List(ctx context.Context, userID int64, limit, offset int) ([]*model.Notification, int64, error)
		CountUnread(ctx context.Context, userID int64) (int, error)
		MarkRead(ctx context.Context, userID int64, id uuid.UUID, at time.Time) error
		MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error)
		DeleteAll(ctx context.Context, userID int64) (int64, error)
		DeleteBefore(ctx context.Context, userID int64, before time.Time) (int64, error)
		Purge(ctx context.Context, before time.Time) (int64, error)
		ExistsPaymentOverdue(ctx context.Context, q PaymentOverdueQuery) (bool, error)
	}

	// ContractRepository is a read-only view of contracts and their assignees.
	ContractRepository interface {
		Get(ctx context.Context, id int64) (*model.Contract, error)
		ListAssignments(ctx context.Context, contractID int64) ([]*model.ContractAssignment, error)
		ListExpiring(ctx context.Context, from, to time.Time) ([]*model.Contract, error)
		ListOverduePayments(ctx context.Context, asOf time.Time) ([]*model.PaymentDue, error)
	}

	// UserRepository is a read-only view of the user directory.
	UserRepository interface {
		Get(ctx context.Context, id int64) (*model.User, error)
		ListActive(ctx context.Context) ([]*model.User, error)
		ListActiveAdmins(ctx context.Context) ([]*model.User, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
