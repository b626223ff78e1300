// Package memory provides in-memory repositories for tests and local runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
)

// NotificationRepository keeps notifications per user in insertion order.
type NotificationRepository struct {
	mu     sync.RWMutex
	byUser map[int64][]*model.Notification

	// FailCreate, when set, is returned by Create for matching users.
	FailCreate func(n *model.Notification) error
	// FailLookup, when set, is returned by ExistsPaymentOverdue.
	FailLookup error
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{byUser: make(map[int64][]*model.Notification)}
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == uuid.Nil {
		return errors.New("notification ID is required")
	}
	if r.FailCreate != nil {
		if err := r.FailCreate(n); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *n
	r.byUser[n.UserID] = append(r.byUser[n.UserID], &stored)
	return nil
}

func (r *NotificationRepository) Get(ctx context.Context, userID int64, id uuid.UUID) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.byUser[userID] {
		if n.ID == id {
			cp := *n
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *NotificationRepository) List(ctx context.Context, userID int64, limit, offset int) ([]*model.Notification, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.Notification, 0, len(r.byUser[userID]))
	for _, n := range r.byUser[userID] {
		cp := *n
		all = append(all, &cp)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if offset >= len(all) {
		return []*model.Notification{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.byUser[userID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID int64, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.byUser[userID] {
		if n.ID == id {
			n.MarkAsRead(at)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated int64
	for _, n := range r.byUser[userID] {
		if n.MarkAsRead(at) {
			updated++
		}
	}
	return updated, nil
}

func (r *NotificationRepository) DeleteAll(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.byUser[userID]))
	delete(r.byUser, userID)
	return n, nil
}

func (r *NotificationRepository) DeleteBefore(ctx context.Context, userID int64, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.deleteBeforeLocked(userID, before), nil
}

func (r *NotificationRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total int64
	for userID := range r.byUser {
		total += r.deleteBeforeLocked(userID, before)
	}
	return total, nil
}

func (r *NotificationRepository) deleteBeforeLocked(userID int64, before time.Time) int64 {
	kept := r.byUser[userID][:0]
	var removed int64
	for _, n := range r.byUser[userID] {
		if n.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	r.byUser[userID] = kept
	return removed
}

func (r *NotificationRepository) ExistsPaymentOverdue(ctx context.Context, q repository.PaymentOverdueQuery) (bool, error) {
	if r.FailLookup != nil {
		return false, r.FailLookup
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.byUser[q.UserID] {
		if n.Type != model.NotificationPaymentOverdue || n.CreatedAt.Before(q.Since) {
			continue
		}
		meta, ok := n.Metadata.(model.PaymentOverdueMetadata)
		if ok && meta.ContractID == q.ContractID && meta.DaysOverdue == q.DaysOverdue {
			return true, nil
		}
	}
	return false, nil
}

// All returns every stored notification for a user in insertion order.
func (r *NotificationRepository) All(userID int64) []*model.Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Notification, 0, len(r.byUser[userID]))
	for _, n := range r.byUser[userID] {
		cp := *n
		out = append(out, &cp)
	}
	return out
}

// Count returns the number of stored notifications across all users.
func (r *NotificationRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, list := range r.byUser {
		total += len(list)
	}
	return total
}
