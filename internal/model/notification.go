package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationContractCreated    NotificationType = "contract_created"
	NotificationContractAssigned   NotificationType = "contract_assigned"
	NotificationAssignmentRemoved  NotificationType = "assignment_removed"
	NotificationRoleChanged        NotificationType = "role_changed"
	NotificationContractExpiring   NotificationType = "contract_expiring"
	NotificationPaymentOverdue     NotificationType = "payment_overdue"
	NotificationCommentAdded       NotificationType = "comment_added"
	NotificationStatusChanged      NotificationType = "status_changed"
	NotificationSystemAnnouncement NotificationType = "system_announcement"
	NotificationAdminAlert         NotificationType = "admin_alert"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationContractCreated:    {},
	NotificationContractAssigned:   {},
	NotificationAssignmentRemoved:  {},
	NotificationRoleChanged:        {},
	NotificationContractExpiring:   {},
	NotificationPaymentOverdue:     {},
	NotificationCommentAdded:       {},
	NotificationStatusChanged:      {},
	NotificationSystemAnnouncement: {},
	NotificationAdminAlert:         {},
}

// Known reports whether t is one of the defined notification types.
func (t NotificationType) Known() bool {
	_, ok := notificationTypes[t]
	return ok
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Notification is one persisted message for one recipient.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    int64            `json:"user_id" validate:"required,gt=0"`
	Type      NotificationType `json:"type" validate:"required,notification_type"`
	Title     string           `json:"title" validate:"required,max=255"`
	Message   string           `json:"message" validate:"required,max=4096"`
	Link      *string          `json:"link,omitempty"`
	Priority  Priority         `json:"priority" validate:"omitempty,oneof=normal high"`
	Metadata  Metadata         `json:"metadata,omitempty"`
	Read      bool             `json:"read"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// MarkAsRead flips the notification to read. A notification that is
// already read keeps its original ReadAt.
func (n *Notification) MarkAsRead(at time.Time) bool {
	if n.Read {
		return false
	}
	n.Read = true
	n.ReadAt = &at
	return true
}

// NotificationPage is one page of a user's notifications, newest first.
type NotificationPage struct {
	Items      []*Notification `json:"items"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

// NotificationEvent is the live push payload.
type NotificationEvent struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification"`
}
