// Package recipient decides who is told about a domain event.
package recipient

import (
	"context"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
	"github.com/jwalitptl/contract-admin/pkg/logger"
)

// Resolver evaluates the policy table against the user directory and
// contract assignments. It never returns an error: a failed lookup is
// logged and resolves to nobody, since notifying is always secondary to
// the operation that triggered it.
type Resolver struct {
	users     repository.UserRepository
	contracts repository.ContractRepository
	logger    *logger.Logger
}

func NewResolver(users repository.UserRepository, contracts repository.ContractRepository, log *logger.Logger) *Resolver {
	return &Resolver{
		users:     users,
		contracts: contracts,
		logger:    log.With("recipient_resolver"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, eventType model.NotificationType, rc model.ResolutionContext) model.UserSet {
	if len(rc.ExplicitRecipients) > 0 {
		set := model.NewUserSet(rc.ExplicitRecipients...)
		if rc.ActorUserID != nil {
			set.Remove(*rc.ActorUserID)
		}
		return set
	}

	policy := PolicyFor(eventType)
	set, err := r.byPolicy(ctx, policy, rc)
	if err != nil {
		r.logger.Error(err, "Failed to resolve recipients",
			"event_type", string(eventType),
			"contract_id", rc.ContractID)
		return model.NewUserSet()
	}

	if policy.ExcludeActor && rc.ActorUserID != nil {
		set.Remove(*rc.ActorUserID)
	}
	return set
}

func (r *Resolver) byPolicy(ctx context.Context, policy Policy, rc model.ResolutionContext) (model.UserSet, error) {
	switch {
	case policy.IsGlobal:
		users, err := r.users.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		return idsOf(users), nil
	case policy.AdminOnly:
		admins, err := r.users.ListActiveAdmins(ctx)
		if err != nil {
			return nil, err
		}
		return idsOf(admins), nil
	}

	set := model.NewUserSet()
	if rc.ContractID != nil {
		if err := r.addContractParties(ctx, *rc.ContractID, set); err != nil {
			return nil, err
		}
	}

	if policy.IncludeAdmins {
		admins, err := r.users.ListActiveAdmins(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range admins {
			set.Add(a.ID)
		}
	}
	return set, nil
}

// addContractParties adds the contract's active assignees and its creator.
// Users that are deactivated in the directory are skipped.
func (r *Resolver) addContractParties(ctx context.Context, contractID int64, set model.UserSet) error {
	contract, err := r.contracts.Get(ctx, contractID)
	if err != nil {
		return err
	}
	assignments, err := r.contracts.ListAssignments(ctx, contractID)
	if err != nil {
		return err
	}
	active, err := r.users.ListActive(ctx)
	if err != nil {
		return err
	}
	activeIDs := idsOf(active)

	for _, a := range assignments {
		if a.IsActive && activeIDs.Has(a.UserID) {
			set.Add(a.UserID)
		}
	}
	if activeIDs.Has(contract.CreatedBy) {
		set.Add(contract.CreatedBy)
	}
	return nil
}

// CanReceive reports whether userID may see notifications about
// contractID: admins, active assignees and the creator can.
func (r *Resolver) CanReceive(ctx context.Context, userID, contractID int64) bool {
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		r.logger.Error(err, "Failed to load user", "user_id", userID)
		return false
	}
	if user.IsAdmin() && user.IsActive {
		return true
	}

	contract, err := r.contracts.Get(ctx, contractID)
	if err != nil {
		r.logger.Error(err, "Failed to load contract", "contract_id", contractID)
		return false
	}
	if contract.CreatedBy == userID {
		return true
	}

	assignments, err := r.contracts.ListAssignments(ctx, contractID)
	if err != nil {
		r.logger.Error(err, "Failed to load assignments", "contract_id", contractID)
		return false
	}
	for _, a := range assignments {
		if a.UserID == userID && a.IsActive {
			return true
		}
	}
	return false
}

func idsOf(users []*model.User) model.UserSet {
	set := make(model.UserSet, len(users))
	for _, u := range users {
		set.Add(u.ID)
	}
	return set
}
