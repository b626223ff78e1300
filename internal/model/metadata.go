package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is the type-specific payload attached to a notification.
// Each notification type has its own variant; OpenMetadata carries
// payloads for types this build does not know about.
type Metadata interface {
	metadata()
}

type AssignmentMetadata struct {
	ContractID int64  `json:"contract_id"`
	Role       string `json:"role,omitempty"`
}

type RoleMetadata struct {
	Role         string `json:"role"`
	PreviousRole string `json:"previous_role,omitempty"`
}

type ExpiryMetadata struct {
	ContractID      int64     `json:"contract_id"`
	DaysUntilExpiry int       `json:"days_until_expiry"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type PaymentOverdueMetadata struct {
	ContractID  int64   `json:"contract_id"`
	DaysOverdue int     `json:"days_overdue"`
	Amount      float64 `json:"amount,omitempty"`
}

type CommentMetadata struct {
	ContractID int64 `json:"contract_id"`
	CommentID  int64 `json:"comment_id"`
	AuthorID   int64 `json:"author_id"`
}

type StatusMetadata struct {
	ContractID int64  `json:"contract_id"`
	From       string `json:"from,omitempty"`
	To         string `json:"to"`
}

type OpenMetadata map[string]any

func (AssignmentMetadata) metadata()     {}
func (RoleMetadata) metadata()           {}
func (ExpiryMetadata) metadata()         {}
func (PaymentOverdueMetadata) metadata() {}
func (CommentMetadata) metadata()        {}
func (StatusMetadata) metadata()         {}
func (OpenMetadata) metadata()           {}

// EncodeMetadata serializes metadata for storage. Nil metadata encodes to nil.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return raw, nil
}

// DecodeMetadata parses raw JSON into the variant registered for t.
func DecodeMetadata(t NotificationType, raw []byte) (Metadata, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var m Metadata
	switch t {
	case NotificationContractAssigned, NotificationAssignmentRemoved:
		m = &AssignmentMetadata{}
	case NotificationRoleChanged:
		m = &RoleMetadata{}
	case NotificationContractExpiring:
		m = &ExpiryMetadata{}
	case NotificationPaymentOverdue:
		m = &PaymentOverdueMetadata{}
	case NotificationCommentAdded:
		m = &CommentMetadata{}
	case NotificationStatusChanged, NotificationContractCreated:
		m = &StatusMetadata{}
	default:
		open := OpenMetadata{}
		if err := json.Unmarshal(raw, &open); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", t, err)
		}
		return open, nil
	}

	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", t, err)
	}
	return deref(m), nil
}

func deref(m Metadata) Metadata {
	switch v := m.(type) {
	case *AssignmentMetadata:
		return *v
	case *RoleMetadata:
		return *v
	case *ExpiryMetadata:
		return *v
	case *PaymentOverdueMetadata:
		return *v
	case *CommentMetadata:
		return *v
	case *StatusMetadata:
		return *v
	}
	return m
}

// ContractIDOf returns the contract a notification refers to, if any.
func ContractIDOf(m Metadata) (int64, bool) {
	switch v := m.(type) {
	case AssignmentMetadata:
		return v.ContractID, true
	case ExpiryMetadata:
		return v.ContractID, true
	case PaymentOverdueMetadata:
		return v.ContractID, true
	case CommentMetadata:
		return v.ContractID, true
	case StatusMetadata:
		return v.ContractID, true
	case OpenMetadata:
		switch id := v["contract_id"].(type) {
		case float64:
			return int64(id), true
		case int64:
			return id, true
		case int:
			return int64(id), true
		}
	}
	return 0, false
}

// UnmarshalJSON decodes the metadata field into the variant for the
// notification's type.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type alias Notification
	aux := struct {
		*alias
		Metadata json.RawMessage `json:"metadata,omitempty"`
	}{alias: (*alias)(n)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	meta, err := DecodeMetadata(n.Type, aux.Metadata)
	if err != nil {
		return err
	}
	n.Metadata = meta
	return nil
}
