package notification

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/contract-admin/internal/live"
	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository/memory"
	apperrors "github.com/jwalitptl/contract-admin/pkg/errors"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (Service, *memory.NotificationRepository, *live.Registry, *testClock) {
	t.Helper()
	repo := memory.NewNotificationRepository()
	m := metrics.Nop()
	reg := live.NewRegistry(m)
	clock := &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	svc := NewService(repo, live.NewLocalDeliverer(reg, m, logger.Nop()), m, logger.Nop(), WithClock(clock.Now))
	return svc, repo, reg, clock
}

func newNote(userID int64) *model.Notification {
	return &model.Notification{
		UserID:  userID,
		Type:    model.NotificationCommentAdded,
		Title:   "New comment",
		Message: "Looks good to me",
	}
}

func TestCreateStoresAndPushes(t *testing.T) {
	svc, repo, reg, clock := newTestService(t)
	conn := live.NewStreamConn(2)
	reg.Register(9, conn)

	created, err := svc.Create(context.Background(), newNote(9))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, model.PriorityNormal, created.Priority)
	assert.Equal(t, clock.now, created.CreatedAt)
	assert.Len(t, repo.All(9), 1)

	select {
	case ev := <-conn.Events():
		assert.Equal(t, live.EventNotification, ev.Name)
	default:
		t.Fatal("expected a live push")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, repo, _, _ := newTestService(t)

	tests := []struct {
		name string
		n    *model.Notification
	}{
		{"missing user", &model.Notification{Type: model.NotificationCommentAdded, Title: "t", Message: "m"}},
		{"missing title", &model.Notification{UserID: 1, Type: model.NotificationCommentAdded, Message: "m"}},
		{"unknown type", &model.Notification{UserID: 1, Type: "contract_archived", Title: "t", Message: "m"}},
		{"bad priority", &model.Notification{UserID: 1, Type: model.NotificationCommentAdded, Title: "t", Message: "m", Priority: "urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.n)
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
		})
	}
	assert.Zero(t, repo.Count())
}

func TestCreateReturnsStoreFailure(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	boom := errors.New("disk full")
	repo.FailCreate = func(*model.Notification) error { return boom }

	_, err := svc.Create(context.Background(), newNote(9))
	assert.ErrorIs(t, err, boom)
}

func TestCreateSurvivesPushFailure(t *testing.T) {
	svc, repo, reg, _ := newTestService(t)
	conn := live.NewStreamConn(1)
	reg.Register(9, conn)
	require.NoError(t, conn.Close())

	_, err := svc.Create(context.Background(), newNote(9))
	require.NoError(t, err)
	assert.Len(t, repo.All(9), 1)
}

func TestListPaginates(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		clock.now = clock.now.Add(time.Minute)
		_, err := svc.Create(ctx, newNote(9))
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, 9, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.Equal(t, int64(25), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 20)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[19].CreatedAt), "newest first")

	page, err = svc.List(ctx, 9, 2, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Empty(t, page.Items)

	empty, err := svc.List(ctx, 404, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 1, empty.TotalPages)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, repo, _, clock := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, newNote(9))
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, 9, created.ID))
	firstRead := clock.now

	clock.now = clock.now.Add(time.Hour)
	require.NoError(t, svc.MarkRead(ctx, 9, created.ID))

	stored := repo.All(9)[0]
	assert.True(t, stored.Read)
	require.NotNil(t, stored.ReadAt)
	assert.Equal(t, firstRead, *stored.ReadAt)

	count, err := svc.UnreadCount(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = svc.MarkRead(ctx, 3, created.ID)
	assert.Equal(t, http.StatusNotFound, apperrors.StatusOf(err), "another user's notification")
}

func TestMarkAllReadAndDelete(t *testing.T) {
	svc, _, _, clock := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, newNote(9))
		require.NoError(t, err)
	}
	clock.now = clock.now.AddDate(0, 0, 10)
	_, err := svc.Create(ctx, newNote(9))
	require.NoError(t, err)

	updated, err := svc.MarkAllRead(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated)

	updated, err = svc.MarkAllRead(ctx, 9)
	require.NoError(t, err)
	assert.Zero(t, updated)

	_, err = svc.DeleteOlderThan(ctx, 9, 0)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))

	deleted, err := svc.DeleteOlderThan(ctx, 9, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	deleted, err = svc.DeleteAll(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestPurge(t *testing.T) {
	svc, repo, _, clock := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, newNote(1))
	require.NoError(t, err)
	_, err = svc.Create(ctx, newNote(2))
	require.NoError(t, err)
	clock.now = clock.now.AddDate(0, 0, 100)
	_, err = svc.Create(ctx, newNote(2))
	require.NoError(t, err)

	purged, err := svc.Purge(ctx, clock.now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
	assert.Equal(t, 1, repo.Count())
}
