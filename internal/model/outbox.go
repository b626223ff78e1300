package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Background work item types
const (
	OutboxNotificationEmail     = "notification.email"
	OutboxNotificationBroadcast = "notification.broadcast"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// EmailPayload is the body of a notification.email work item.
type EmailPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
	UserID         int64     `json:"user_id"`
	To             string    `json:"to"`
	Subject        string    `json:"subject"`
	Content        string    `json:"content"`
}

// Broadcast audiences
const (
	AudienceAll    = "all"
	AudienceAdmins = "admins"
)

// BroadcastPayload is the body of a notification.broadcast work item.
type BroadcastPayload struct {
	Audience string `json:"audience" binding:"required,oneof=all admins"`
	Title    string `json:"title" binding:"required"`
	Message  string `json:"message" binding:"required"`
	ActorID  int64  `json:"actor_id"`
}
