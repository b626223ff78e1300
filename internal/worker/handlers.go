package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/contract-admin/internal/email"
	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/service/notification"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	pkgworker "github.com/jwalitptl/contract-admin/pkg/worker"
)

// Broadcaster is the part of the dispatcher that executes broadcasts.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload model.BroadcastPayload) (notification.DispatchResult, error)
}

// RegisterHandlers wires the notification work items into p.
func RegisterHandlers(p *pkgworker.OutboxProcessor, emailSvc email.Service, broadcaster Broadcaster, log *logger.Logger) {
	p.Register(model.OutboxNotificationEmail, EmailHandler(emailSvc))
	p.Register(model.OutboxNotificationBroadcast, BroadcastHandler(broadcaster, log))
}

func EmailHandler(emailSvc email.Service) pkgworker.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var p model.EmailPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return pkgworker.Permanent(fmt.Errorf("decode email payload: %w", err))
		}
		if p.To == "" {
			return pkgworker.Permanent(fmt.Errorf("email for notification %s has no recipient", p.NotificationID))
		}
		return emailSvc.SendCustom(ctx, p.To, p.Subject, p.Content)
	}
}

// BroadcastHandler fans a broadcast out exactly once. Partial failures
// are logged and the work item still completes.
func BroadcastHandler(b Broadcaster, log *logger.Logger) pkgworker.Handler {
	log = log.With("broadcast_handler")
	return func(ctx context.Context, payload json.RawMessage) error {
		var p model.BroadcastPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return pkgworker.Permanent(fmt.Errorf("decode broadcast payload: %w", err))
		}
		res, err := b.Broadcast(ctx, p)
		if err != nil {
			return pkgworker.Permanent(err)
		}
		if res.Failed > 0 {
			log.Warn("Broadcast partially failed",
				"audience", p.Audience,
				"created", res.Created,
				"failed", res.Failed)
		}
		return nil
	}
}
