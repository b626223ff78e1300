package model

import (
	"time"
)

// Contract is a read-only view of a contract record.
type Contract struct {
	ID        int64      `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Status    string     `json:"status" db:"status"`
	CreatedBy int64      `json:"created_by" db:"created_by"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// ContractAssignment links a user to a contract.
type ContractAssignment struct {
	ContractID int64  `json:"contract_id" db:"contract_id"`
	UserID     int64  `json:"user_id" db:"user_id"`
	Role       string `json:"role" db:"role"`
	IsActive   bool   `json:"is_active" db:"is_active"`
}

// PaymentDue is an unpaid installment of a contract.
type PaymentDue struct {
	ContractID int64     `json:"contract_id" db:"contract_id"`
	DueDate    time.Time `json:"due_date" db:"due_date"`
	Amount     float64   `json:"amount" db:"amount"`
}

// DaysOverdue returns whole days elapsed since the due date.
func (p PaymentDue) DaysOverdue(now time.Time) int {
	if !now.After(p.DueDate) {
		return 0
	}
	return int(now.Sub(p.DueDate).Hours() / 24)
}
