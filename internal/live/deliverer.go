package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/messaging"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
)

// Deliverer pushes a stored notification towards its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, n *model.Notification) error
}

// LocalDeliverer pushes through connections held by this process.
// Recipients without a connection are skipped; they will see the
// notification on their next fetch.
type LocalDeliverer struct {
	registry *Registry
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewLocalDeliverer(registry *Registry, m *metrics.Metrics, log *logger.Logger) *LocalDeliverer {
	return &LocalDeliverer{registry: registry, metrics: m, logger: log.With("live")}
}

func (d *LocalDeliverer) Deliver(ctx context.Context, n *model.Notification) error {
	conn, ok := d.registry.Lookup(n.UserID)
	if !ok {
		d.count("offline")
		return nil
	}

	err := conn.Send(ctx, Event{
		Name: EventNotification,
		Data: model.NotificationEvent{Type: EventNotification, Notification: n},
	})
	switch {
	case err == nil:
		d.count("delivered")
		return nil
	case errors.Is(err, ErrConnClosed):
		d.registry.Unregister(conn)
	}
	d.count("failed")
	return fmt.Errorf("push to user %d: %w", n.UserID, err)
}

func (d *LocalDeliverer) count(outcome string) {
	if d.metrics != nil {
		d.metrics.LivePushes.WithLabelValues(outcome).Inc()
	}
}

// pushMessage is the broker payload relayed between instances.
type pushMessage struct {
	UserID       int64               `json:"user_id"`
	Notification *model.Notification `json:"notification"`
}

// BrokerDeliverer publishes every push on a broker channel; a Relay on
// each instance delivers it to whichever one holds the connection.
type BrokerDeliverer struct {
	broker  messaging.Broker
	channel string
}

func NewBrokerDeliverer(broker messaging.Broker, channel string) *BrokerDeliverer {
	return &BrokerDeliverer{broker: broker, channel: channel}
}

func (d *BrokerDeliverer) Deliver(ctx context.Context, n *model.Notification) error {
	if err := d.broker.Publish(ctx, d.channel, pushMessage{UserID: n.UserID, Notification: n}); err != nil {
		return fmt.Errorf("publish push for user %d: %w", n.UserID, err)
	}
	return nil
}

// Relay feeds pushes published by any instance into the local registry.
type Relay struct {
	broker  messaging.MessageBroker
	channel string
	local   *LocalDeliverer
	logger  *logger.Logger
}

func NewRelay(broker messaging.MessageBroker, channel string, local *LocalDeliverer, log *logger.Logger) *Relay {
	return &Relay{broker: broker, channel: channel, local: local, logger: log.With("live_relay")}
}

// Start subscribes and returns; delivery stops when ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.broker.Subscribe(ctx, r.channel, func(payload []byte) error {
		return r.handle(ctx, payload)
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("Relaying live pushes", "channel", r.channel)
	return nil
}

func (r *Relay) handle(ctx context.Context, payload []byte) error {
	var msg pushMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode push: %w", err)
	}
	if msg.Notification == nil {
		return errors.New("push without notification")
	}
	if err := r.local.Deliver(ctx, msg.Notification); err != nil {
		r.logger.Warn("Relayed push not delivered", "user_id", msg.UserID, "error", err.Error())
	}
	return nil
}
