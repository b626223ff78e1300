package recipient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository/memory"
	"github.com/jwalitptl/contract-admin/pkg/logger"
)

// fixture: admins 1 (active) and 2 (inactive); members 3, 7, 9 active,
// 11 inactive. Contract 42 created by 3, assigned to 7 (inactive
// assignment), 9 and 11.
func newDirectory() *memory.Directory {
	d := memory.NewDirectory()
	d.AddUser(model.User{ID: 1, Role: model.RoleAdmin, IsActive: true}).
		AddUser(model.User{ID: 2, Role: model.RoleAdmin, IsActive: false}).
		AddUser(model.User{ID: 3, Role: model.RoleManager, IsActive: true}).
		AddUser(model.User{ID: 7, Role: model.RoleMember, IsActive: true}).
		AddUser(model.User{ID: 9, Role: model.RoleMember, IsActive: true}).
		AddUser(model.User{ID: 11, Role: model.RoleMember, IsActive: false}).
		AddContract(model.Contract{ID: 42, Title: "Supply agreement", CreatedBy: 3}).
		Assign(model.ContractAssignment{ContractID: 42, UserID: 7, IsActive: false}).
		Assign(model.ContractAssignment{ContractID: 42, UserID: 9, IsActive: true}).
		Assign(model.ContractAssignment{ContractID: 42, UserID: 11, IsActive: true})
	return d
}

func newResolver(d *memory.Directory) *Resolver {
	return NewResolver(d, d.Contracts(), logger.Nop())
}

func TestResolveAssignedWithoutAdminsExcludesActor(t *testing.T) {
	r := newResolver(newDirectory())

	got := r.Resolve(context.Background(), model.NotificationCommentAdded, model.ResolutionContext{
		ContractID:  model.Int64(42),
		ActorUserID: model.Int64(3),
	})

	assert.Equal(t, []int64{9}, got.Slice())
}

func TestResolveIncludesAdminsAndCreator(t *testing.T) {
	r := newResolver(newDirectory())

	got := r.Resolve(context.Background(), model.NotificationContractExpiring, model.ResolutionContext{
		ContractID:  model.Int64(42),
		ActorUserID: model.Int64(3),
	})

	// contract_expiring keeps the actor
	assert.Equal(t, []int64{1, 3, 9}, got.Slice())
}

func TestResolveExcludesActorEvenWhenAssigned(t *testing.T) {
	r := newResolver(newDirectory())

	got := r.Resolve(context.Background(), model.NotificationStatusChanged, model.ResolutionContext{
		ContractID:  model.Int64(42),
		ActorUserID: model.Int64(9),
	})

	assert.False(t, got.Has(9))
	assert.Equal(t, []int64{1, 3}, got.Slice())
}

func TestResolveGlobalAndAdminOnly(t *testing.T) {
	r := newResolver(newDirectory())
	ctx := context.Background()

	all := r.Resolve(ctx, model.NotificationSystemAnnouncement, model.ResolutionContext{})
	assert.Equal(t, []int64{1, 3, 7, 9}, all.Slice())

	admins := r.Resolve(ctx, model.NotificationAdminAlert, model.ResolutionContext{ContractID: model.Int64(42)})
	assert.Equal(t, []int64{1}, admins.Slice())

	withoutActor := r.Resolve(ctx, model.NotificationSystemAnnouncement, model.ResolutionContext{ActorUserID: model.Int64(1)})
	assert.Equal(t, []int64{3, 7, 9}, withoutActor.Slice())
}

func TestResolveExplicitRecipientsBypassPolicy(t *testing.T) {
	r := newResolver(newDirectory())

	got := r.Resolve(context.Background(), model.NotificationAdminAlert, model.ResolutionContext{
		ContractID:         model.Int64(42),
		ActorUserID:        model.Int64(5),
		ExplicitRecipients: []int64{5, 7, 7, 100},
	})

	assert.Equal(t, []int64{7, 100}, got.Slice())
}

func TestResolveUnknownTypeFallsBack(t *testing.T) {
	r := newResolver(newDirectory())

	assert.Equal(t, Policy{OnlyAssigned: true, ExcludeActor: true}, PolicyFor("contract_archived"))

	got := r.Resolve(context.Background(), "contract_archived", model.ResolutionContext{
		ContractID:  model.Int64(42),
		ActorUserID: model.Int64(9),
	})
	assert.Equal(t, []int64{3}, got.Slice())
}

func TestResolveFailuresYieldEmptySet(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown contract", func(t *testing.T) {
		r := newResolver(newDirectory())
		got := r.Resolve(ctx, model.NotificationContractCreated, model.ResolutionContext{ContractID: model.Int64(404)})
		assert.Empty(t, got)
	})

	t.Run("directory down", func(t *testing.T) {
		d := newDirectory()
		d.Err = memory.ErrUnavailable
		r := newResolver(d)
		assert.Empty(t, r.Resolve(ctx, model.NotificationSystemAnnouncement, model.ResolutionContext{}))
		assert.Empty(t, r.Resolve(ctx, model.NotificationPaymentOverdue, model.ResolutionContext{ContractID: model.Int64(42)}))
	})
}

func TestPolicyTable(t *testing.T) {
	tests := []struct {
		typ  model.NotificationType
		want Policy
	}{
		{model.NotificationContractCreated, Policy{IncludeAdmins: true, OnlyAssigned: true, ExcludeActor: true}},
		{model.NotificationContractAssigned, Policy{OnlyAssigned: true, ExcludeActor: true}},
		{model.NotificationRoleChanged, Policy{ExcludeActor: true}},
		{model.NotificationPaymentOverdue, Policy{IncludeAdmins: true, OnlyAssigned: true}},
		{model.NotificationSystemAnnouncement, Policy{IsGlobal: true, ExcludeActor: true}},
		{model.NotificationAdminAlert, Policy{AdminOnly: true, ExcludeActor: true}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, PolicyFor(tt.typ))
		})
	}
}

func TestCanReceive(t *testing.T) {
	d := newDirectory()
	r := newResolver(d)
	ctx := context.Background()

	assert.True(t, r.CanReceive(ctx, 1, 42), "admin")
	assert.True(t, r.CanReceive(ctx, 3, 42), "creator")
	assert.True(t, r.CanReceive(ctx, 9, 42), "active assignee")
	assert.False(t, r.CanReceive(ctx, 7, 42), "inactive assignment")
	assert.False(t, r.CanReceive(ctx, 2, 42), "inactive admin")
	assert.False(t, r.CanReceive(ctx, 1000, 42), "unknown user")

	d.Err = memory.ErrUnavailable
	assert.False(t, r.CanReceive(ctx, 1, 42))
}
