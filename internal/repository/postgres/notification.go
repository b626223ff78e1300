package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
)

const notificationColumns = `id, user_id, type, title, message, link, priority, metadata, is_read, read_at, created_at`

type notificationRow struct {
	ID        uuid.UUID      `db:"id"`
	UserID    int64          `db:"user_id"`
	Type      string         `db:"type"`
	Title     string         `db:"title"`
	Message   string         `db:"message"`
	Link      sql.NullString `db:"link"`
	Priority  string         `db:"priority"`
	Metadata  []byte         `db:"metadata"`
	IsRead    bool           `db:"is_read"`
	ReadAt    *time.Time     `db:"read_at"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r notificationRow) toModel() (*model.Notification, error) {
	n := &model.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      model.NotificationType(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Priority:  model.Priority(r.Priority),
		Read:      r.IsRead,
		ReadAt:    r.ReadAt,
		CreatedAt: r.CreatedAt,
	}
	if r.Link.Valid {
		link := r.Link.String
		n.Link = &link
	}
	meta, err := model.DecodeMetadata(n.Type, r.Metadata)
	if err != nil {
		return nil, err
	}
	n.Metadata = meta
	return n, nil
}

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	raw, err := model.EncodeMetadata(n.Metadata)
	if err != nil {
		return err
	}
	var metadata sql.NullString
	if raw != nil {
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO notifications (
			id, user_id, type, title, message, link, priority, metadata, is_read, read_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		string(n.Type),
		n.Title,
		n.Message,
		n.Link,
		string(n.Priority),
		metadata,
		n.Read,
		n.ReadAt,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, userID int64, id uuid.UUID) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1 AND user_id = $2`

	var row notificationRow
	if err := r.db.GetContext(ctx, &row, query, id, userID); err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

func (r *notificationRepository) List(ctx context.Context, userID int64, limit, offset int) ([]*model.Notification, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}

	items := make([]*model.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toModel()
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID)
	return count, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID int64, id uuid.UUID, at time.Time) error {
	// read_at is kept from the first transition
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`
	n, err := affected(r.db.ExecContext(ctx, query, id, userID, at))
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	query := `UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND is_read = FALSE`
	return affected(r.db.ExecContext(ctx, query, userID, at))
}

func (r *notificationRepository) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	return affected(r.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID))
}

func (r *notificationRepository) DeleteBefore(ctx context.Context, userID int64, before time.Time) (int64, error) {
	return affected(r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE user_id = $1 AND created_at < $2`, userID, before))
}

func (r *notificationRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	n, err := affected(r.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < $1`, before))
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	return n, nil
}

func (r *notificationRepository) ExistsPaymentOverdue(ctx context.Context, q repository.PaymentOverdueQuery) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1
			AND type = $2
			AND (metadata->>'contract_id')::bigint = $3
			AND (metadata->>'days_overdue')::int = $4
			AND created_at >= $5
		)
	`
	var exists bool
	err := r.db.GetContext(ctx, &exists, query,
		q.UserID, string(model.NotificationPaymentOverdue), q.ContractID, q.DaysOverdue, q.Since)
	if err != nil {
		return false, fmt.Errorf("failed to check payment overdue notification: %w", err)
	}
	return exists, nil
}
