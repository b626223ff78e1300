package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
)

// contractRepository reads the host application's contract tables.
type contractRepository struct {
	BaseRepository
}

func NewContractRepository(base BaseRepository) repository.ContractRepository {
	return &contractRepository{base}
}

func (r *contractRepository) Get(ctx context.Context, id int64) (*model.Contract, error) {
	var c model.Contract
	err := r.db.GetContext(ctx, &c,
		`SELECT id, title, status, created_by, expires_at FROM contracts WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *contractRepository) ListAssignments(ctx context.Context, contractID int64) ([]*model.ContractAssignment, error) {
	query := `
		SELECT contract_id, user_id, role, is_active
		FROM contract_assignments
		WHERE contract_id = $1
	`
	var assignments []*model.ContractAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, contractID); err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

func (r *contractRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]*model.Contract, error) {
	query := `
		SELECT id, title, status, created_by, expires_at
		FROM contracts
		WHERE expires_at >= $1 AND expires_at < $2
		AND status NOT IN ('terminated', 'expired', 'archived')
		ORDER BY expires_at ASC
	`
	var contracts []*model.Contract
	if err := r.db.SelectContext(ctx, &contracts, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to list expiring contracts: %w", err)
	}
	return contracts, nil
}

func (r *contractRepository) ListOverduePayments(ctx context.Context, asOf time.Time) ([]*model.PaymentDue, error) {
	query := `
		SELECT contract_id, due_date, amount
		FROM contract_payments
		WHERE paid_at IS NULL AND due_date < $1
		ORDER BY due_date ASC
	`
	var payments []*model.PaymentDue
	if err := r.db.SelectContext(ctx, &payments, query, asOf); err != nil {
		return nil, fmt.Errorf("failed to list overdue payments: %w", err)
	}
	return payments, nil
}
