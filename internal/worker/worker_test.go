package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/contract-admin/internal/live"
	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository/memory"
	"github.com/jwalitptl/contract-admin/internal/service/notification"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
	pkgworker "github.com/jwalitptl/contract-admin/pkg/worker"
)

type expiring struct {
	contractID int64
	days       int
}

type overdue struct {
	contractID int64
	days       int
	amount     float64
}

type recordingEvents struct {
	mu       sync.Mutex
	expiring []expiring
	overdue  []overdue
}

func (r *recordingEvents) ContractExpiring(ctx context.Context, contractID int64, days int) notification.DispatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiring = append(r.expiring, expiring{contractID, days})
	return notification.DispatchResult{}
}

func (r *recordingEvents) PaymentOverdue(ctx context.Context, contractID int64, days int, amount float64) notification.DispatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overdue = append(r.overdue, overdue{contractID, days, amount})
	return notification.DispatchResult{}
}

func at(t time.Time) *time.Time { return &t }

func TestContractScanner(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	dir := memory.NewDirectory()
	dir.AddContract(model.Contract{ID: 1, ExpiresAt: at(now.Add(7*24*time.Hour + time.Hour))}).
		AddContract(model.Contract{ID: 2, ExpiresAt: at(now.Add(10 * 24 * time.Hour))}).
		AddContract(model.Contract{ID: 3, ExpiresAt: at(now.Add(45 * 24 * time.Hour))}).
		AddContract(model.Contract{ID: 4}).
		AddPayment(model.PaymentDue{ContractID: 1, DueDate: now.Add(-3*24*time.Hour - time.Hour), Amount: 500}).
		AddPayment(model.PaymentDue{ContractID: 2, DueDate: now.Add(-2 * time.Hour), Amount: 75})

	events := &recordingEvents{}
	s := NewContractScanner(dir.Contracts(), events, 30, time.Hour, logger.Nop())
	s.now = func() time.Time { return now }

	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Expiring: 1, Overdue: 1}, res)
	assert.Equal(t, []expiring{{1, 7}}, events.expiring, "only milestone days inside the horizon")
	assert.Equal(t, []overdue{{1, 3, 500}}, events.overdue, "less than a day late is not overdue yet")

	// an hour later the expiry warning is not repeated; overdue is left to dedup
	now = now.Add(time.Hour)
	res, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Expiring: 0, Overdue: 1}, res)
	assert.Len(t, events.expiring, 1)
}

func TestContractScannerPropagatesLookupErrors(t *testing.T) {
	dir := memory.NewDirectory()
	dir.Err = memory.ErrUnavailable
	s := NewContractScanner(dir.Contracts(), &recordingEvents{}, 30, time.Hour, logger.Nop())

	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, memory.ErrUnavailable)
}

func TestNotificationPurgeWorker(t *testing.T) {
	repo := memory.NewNotificationRepository()
	m := metrics.Nop()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := notification.NewService(repo, live.NewLocalDeliverer(live.NewRegistry(m), m, logger.Nop()), m, logger.Nop(),
		notification.WithClock(func() time.Time { return created }))

	_, err := svc.Create(context.Background(), &model.Notification{UserID: 1, Type: model.NotificationSystemAnnouncement, Title: "t", Message: "m"})
	require.NoError(t, err)

	w := NewNotificationPurgeWorker(svc, 90, time.Hour, logger.Nop())

	w.now = func() time.Time { return created.AddDate(0, 0, 89) }
	n, err := w.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	w.now = func() time.Time { return created.AddDate(0, 0, 91) }
	n, err = w.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type fakeEmail struct {
	to, subject, content string
	err                  error
}

func (f *fakeEmail) SendCustom(ctx context.Context, to, subject, content string) error {
	f.to, f.subject, f.content = to, subject, content
	return f.err
}

type fakeBroadcaster struct {
	got model.BroadcastPayload
	res notification.DispatchResult
	err error
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, p model.BroadcastPayload) (notification.DispatchResult, error) {
	f.got = p
	return f.res, f.err
}

func TestOutboxHandlersEndToEnd(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	p := pkgworker.NewOutboxProcessor(outbox, pkgworker.OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}, logger.Nop(), metrics.Nop())

	mail := &fakeEmail{}
	broadcaster := &fakeBroadcaster{res: notification.DispatchResult{Recipients: 3, Created: 2, Failed: 1}}
	RegisterHandlers(p, mail, broadcaster, logger.Nop())

	emailPayload, _ := json.Marshal(model.EmailPayload{UserID: 9, To: "nine@example.com", Subject: "Payment overdue", Content: "3 days"})
	broadcastPayload, _ := json.Marshal(model.BroadcastPayload{Audience: model.AudienceAll, Title: "Hello", Message: "World", ActorID: 1})
	noRecipient, _ := json.Marshal(model.EmailPayload{UserID: 9})

	ctx := context.Background()
	require.NoError(t, outbox.Create(ctx, &model.OutboxEvent{EventType: model.OutboxNotificationEmail, Payload: emailPayload}))
	require.NoError(t, outbox.Create(ctx, &model.OutboxEvent{EventType: model.OutboxNotificationBroadcast, Payload: broadcastPayload}))
	require.NoError(t, outbox.Create(ctx, &model.OutboxEvent{EventType: model.OutboxNotificationEmail, Payload: noRecipient}))

	done, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, done)

	assert.Equal(t, "nine@example.com", mail.to)
	assert.Equal(t, "Payment overdue", mail.subject)
	assert.Equal(t, model.AudienceAll, broadcaster.got.Audience)

	statuses := map[model.OutboxStatus]int{}
	for _, evt := range outbox.Events() {
		statuses[evt.Status]++
	}
	assert.Equal(t, map[model.OutboxStatus]int{model.OutboxStatusProcessed: 2, model.OutboxStatusFailed: 1}, statuses)
}

func TestEmailHandlerSurfacesSendErrors(t *testing.T) {
	boom := errors.New("smtp down")
	h := EmailHandler(&fakeEmail{err: boom})
	payload, _ := json.Marshal(model.EmailPayload{To: "a@example.com"})
	assert.ErrorIs(t, h(context.Background(), payload), boom)
}
