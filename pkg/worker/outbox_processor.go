package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
)

// Handler executes one outbox event. Wrap an error with Permanent to stop
// retrying it.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts bounds the attempts made within one poll.
	RetryAttempts int
	RetryDelay    time.Duration
	// Lease hides claimed events from other processors while they run.
	Lease time.Duration
	// MaxRequeues is how many polls an event may fail before it is marked
	// failed for good.
	MaxRequeues int
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.Lease <= 0 {
		config.Lease = time.Minute
	}
	if config.MaxRequeues <= 0 {
		config.MaxRequeues = 5
	}

	return &OutboxProcessor{
		repo:     repo,
		config:   config,
		logger:   logger.With("outbox_processor"),
		metrics:  metrics,
		now:      time.Now,
		handlers: make(map[string]Handler),
	}
}

// Register sets the handler for eventType, replacing any previous one.
func (p *OutboxProcessor) Register(eventType string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = h
}

func (p *OutboxProcessor) handler(eventType string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[eventType]
	return h, ok
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch claims and runs one batch, returning how many events
// completed successfully.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize, p.config.Lease)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	done := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		done++
	}

	return done, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	h, ok := p.handler(event.EventType)
	if !ok {
		err := fmt.Errorf("no handler for event type %q", event.EventType)
		p.fail(ctx, event, err, true)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.config.RetryDelay
	policy.MaxElapsedTime = 0
	retries := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(p.config.RetryAttempts-1)), ctx)

	attempt := 0
	permanent := false
	err := backoff.Retry(func() error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		attempt++
		err := h(ctx, event.Payload)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanent = true
		}
		return err
	}, retries)

	if err != nil {
		p.fail(ctx, event, err, permanent)
		return err
	}

	p.metrics.OutboxEventsProcessed.WithLabelValues(event.EventType).Inc()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}

	return nil
}

// fail requeues the event with a growing delay, or marks it failed once it
// is permanent or out of requeues.
func (p *OutboxProcessor) fail(ctx context.Context, event *model.OutboxEvent, cause error, permanent bool) {
	p.metrics.OutboxEventsFailed.WithLabelValues(event.EventType).Inc()
	errStr := cause.Error()

	status := model.OutboxStatusRetry
	var retryAt *time.Time
	if permanent || event.RetryCount+1 >= p.config.MaxRequeues {
		status = model.OutboxStatusFailed
	} else {
		at := p.now().Add(p.config.PollInterval * time.Duration(1<<event.RetryCount))
		retryAt = &at
	}

	if err := p.repo.UpdateStatus(ctx, event.ID, status, &errStr, retryAt); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
	}
}
