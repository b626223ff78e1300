package postgres

import (
	"context"
	"fmt"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
)

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := r.db.GetContext(ctx, &u, `SELECT id, email, name, role, is_active FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepository) ListActive(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, email, name, role, is_active FROM users WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return users, nil
}

func (r *userRepository) ListActiveAdmins(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, email, name, role, is_active FROM users WHERE is_active = TRUE AND role = $1`, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to list active admins: %w", err)
	}
	return users, nil
}
