package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/contract-admin/internal/live"
	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository/memory"
	"github.com/jwalitptl/contract-admin/internal/service/event"
	"github.com/jwalitptl/contract-admin/internal/service/recipient"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
)

type dispatchFixture struct {
	dispatcher *Dispatcher
	repo       *memory.NotificationRepository
	outbox     *memory.OutboxRepository
	dir        *memory.Directory
	clock      *testClock
}

// Directory: admin 1, creator 3, assignees 7 (inactive assignment) and 9.
func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	dir := memory.NewDirectory()
	dir.AddUser(model.User{ID: 1, Email: "admin@example.com", Role: model.RoleAdmin, IsActive: true}).
		AddUser(model.User{ID: 3, Email: "creator@example.com", Role: model.RoleManager, IsActive: true}).
		AddUser(model.User{ID: 7, Email: "seven@example.com", Role: model.RoleMember, IsActive: true}).
		AddUser(model.User{ID: 9, Email: "nine@example.com", Role: model.RoleMember, IsActive: true}).
		AddContract(model.Contract{ID: 42, Title: "Supply agreement", CreatedBy: 3}).
		Assign(model.ContractAssignment{ContractID: 42, UserID: 7, IsActive: false}).
		Assign(model.ContractAssignment{ContractID: 42, UserID: 9, IsActive: true})

	repo := memory.NewNotificationRepository()
	outbox := memory.NewOutboxRepository()
	m := metrics.Nop()
	clock := &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	store := NewService(repo, live.NewLocalDeliverer(live.NewRegistry(m), m, logger.Nop()), m, logger.Nop(), WithClock(clock.Now))

	d := NewDispatcher(DispatcherDeps{
		Store:         store,
		Resolver:      recipient.NewResolver(dir, dir.Contracts(), logger.Nop()),
		Notifications: repo,
		Users:         dir,
		Contracts:     dir.Contracts(),
		Events:        event.NewEventService(outbox, logger.Nop()),
		Metrics:       m,
		Logger:        logger.Nop(),
		Now:           clock.Now,
	})
	return &dispatchFixture{dispatcher: d, repo: repo, outbox: outbox, dir: dir, clock: clock}
}

func TestPaymentOverdueIsDeduplicated(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	first := f.dispatcher.PaymentOverdue(ctx, 42, 3, 1250)
	assert.Equal(t, DispatchResult{Recipients: 3, Created: 3}, first)

	f.clock.now = f.clock.now.Add(6 * time.Hour)
	second := f.dispatcher.PaymentOverdue(ctx, 42, 3, 1250)
	assert.Equal(t, DispatchResult{Recipients: 3, Skipped: 3}, second)

	for _, uid := range []int64{1, 3, 9} {
		stored := f.repo.All(uid)
		require.Len(t, stored, 1, "user %d", uid)
		assert.Equal(t, model.PriorityHigh, stored[0].Priority)
		assert.Equal(t, model.PaymentOverdueMetadata{ContractID: 42, DaysOverdue: 3, Amount: 1250}, stored[0].Metadata)
	}

	// a different day count is a new signal
	third := f.dispatcher.PaymentOverdue(ctx, 42, 4, 1250)
	assert.Equal(t, 3, third.Created)

	// outside the window the same signal fires again
	f.clock.now = f.clock.now.Add(25 * time.Hour)
	fourth := f.dispatcher.PaymentOverdue(ctx, 42, 3, 1250)
	assert.Equal(t, 3, fourth.Created)
}

func TestPaymentOverdueFailsClosedOnLookupError(t *testing.T) {
	f := newDispatchFixture(t)
	f.repo.FailLookup = errors.New("connection refused")

	res := f.dispatcher.PaymentOverdue(context.Background(), 42, 3, 100)
	assert.Equal(t, DispatchResult{Recipients: 3, Skipped: 3}, res)
	assert.Zero(t, f.repo.Count())
}

func TestFanOutContinuesPastFailures(t *testing.T) {
	f := newDispatchFixture(t)
	f.repo.FailCreate = func(n *model.Notification) error {
		if n.UserID == 3 {
			return errors.New("constraint violation")
		}
		return nil
	}

	res := f.dispatcher.StatusChanged(context.Background(), 42, "draft", "review", 9)
	assert.Equal(t, DispatchResult{Recipients: 2, Created: 1, Failed: 1}, res)
	assert.Len(t, f.repo.All(1), 1)
	assert.Empty(t, f.repo.All(9), "actor is excluded")
}

func TestContractExpiringPriority(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	f.dispatcher.ContractExpiring(ctx, 42, 14)
	f.dispatcher.ContractExpiring(ctx, 42, 7)

	stored := f.repo.All(9)
	require.Len(t, stored, 2)
	assert.Equal(t, model.PriorityNormal, stored[0].Priority)
	assert.Equal(t, model.PriorityHigh, stored[1].Priority)
	assert.Equal(t, "Supply agreement expires in 7 days", stored[1].Message)
	require.NotNil(t, stored[1].Link)
	assert.Equal(t, "/contracts/42", *stored[1].Link)
}

func TestHighPriorityEnqueuesEmail(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	f.dispatcher.ContractExpiring(ctx, 42, 30)
	assert.Empty(t, f.outbox.Events())

	f.dispatcher.ContractExpiring(ctx, 42, 2)
	events := f.outbox.Events()
	require.Len(t, events, 3)

	recipients := map[string]bool{}
	for _, evt := range events {
		assert.Equal(t, model.OutboxNotificationEmail, evt.EventType)
		var p model.EmailPayload
		require.NoError(t, json.Unmarshal(evt.Payload, &p))
		recipients[p.To] = true
	}
	assert.Equal(t, map[string]bool{"admin@example.com": true, "creator@example.com": true, "nine@example.com": true}, recipients)
}

func TestExplicitRecipientEvents(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	res := f.dispatcher.AssignmentMade(ctx, 42, 7, "reviewer", 3)
	assert.Equal(t, 1, res.Created)
	stored := f.repo.All(7)
	require.Len(t, stored, 1)
	assert.Equal(t, model.AssignmentMetadata{ContractID: 42, Role: "reviewer"}, stored[0].Metadata)

	res = f.dispatcher.RoleChanged(ctx, 9, model.RoleManager, model.RoleMember, 1)
	assert.Equal(t, 1, res.Created)

	// the actor never notifies themselves
	res = f.dispatcher.AssignmentRemoved(ctx, 42, 3, 3)
	assert.Equal(t, DispatchResult{}, res)

	res = f.dispatcher.NotifyUsers(ctx, model.NotificationSystemAnnouncement, []int64{7, 9}, "Maintenance", "Tonight 22:00", 1)
	assert.Equal(t, 2, res.Created)
}

func TestCommentAndCreatedEvents(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	res := f.dispatcher.CommentAdded(ctx, 42, 501, 9, "")
	assert.Equal(t, DispatchResult{Recipients: 1, Created: 1}, res)
	stored := f.repo.All(3)
	require.Len(t, stored, 1)
	assert.Equal(t, "A new comment was posted", stored[0].Message)

	res = f.dispatcher.ContractCreated(ctx, 42, 3)
	assert.Equal(t, DispatchResult{Recipients: 2, Created: 2}, res, "admin and assignee")
}

func TestBroadcast(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	res, err := f.dispatcher.Broadcast(ctx, model.BroadcastPayload{Audience: model.AudienceAll, Title: "Hello", Message: "World", ActorID: 1})
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Recipients: 3, Created: 3}, res)

	res, err = f.dispatcher.Broadcast(ctx, model.BroadcastPayload{Audience: model.AudienceAdmins, Title: "Disk", Message: "90% used", ActorID: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	_, err = f.dispatcher.Broadcast(ctx, model.BroadcastPayload{Audience: "nobody"})
	assert.Error(t, err)
}

func TestEnqueueBroadcast(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.EnqueueBroadcast(ctx, model.BroadcastPayload{Audience: model.AudienceAdmins, Title: "t", Message: "m", ActorID: 1}))
	assert.Error(t, f.dispatcher.EnqueueBroadcast(ctx, model.BroadcastPayload{Audience: "everyone"}))

	events := f.outbox.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxNotificationBroadcast, events[0].EventType)
	assert.Zero(t, f.repo.Count(), "nothing is created until the worker runs")
}
