package notifyclient

import (
	"time"

	"github.com/google/uuid"
)

type Notification struct {
	ID        uuid.UUID      `json:"id"`
	UserID    int64          `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Link      *string        `json:"link,omitempty"`
	Priority  string         `json:"priority"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type Page struct {
	Items      []Notification `json:"items"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// pushEvent is the body of a "notification" stream event.
type pushEvent struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification"`
}
