package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/contract-admin/internal/model"
	"github.com/jwalitptl/contract-admin/internal/repository"
	"github.com/jwalitptl/contract-admin/internal/service/event"
	apperrors "github.com/jwalitptl/contract-admin/pkg/errors"
	"github.com/jwalitptl/contract-admin/pkg/logger"
	"github.com/jwalitptl/contract-admin/pkg/metrics"
)

const (
	// expiryHighPriorityDays is the horizon under which an expiry warning
	// is marked high priority.
	expiryHighPriorityDays = 7
	dedupWindow            = 24 * time.Hour
)

// RecipientResolver is satisfied by recipient.Resolver.
type RecipientResolver interface {
	Resolve(ctx context.Context, eventType model.NotificationType, rc model.ResolutionContext) model.UserSet
}

// DispatchResult summarises one fan-out.
type DispatchResult struct {
	Recipients int `json:"recipients"`
	Created    int `json:"created"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Dispatcher turns domain events into one stored notification per
// recipient. Recipients are handled one after another; a failure for one
// recipient is logged and does not stop the rest.
type Dispatcher struct {
	store         Service
	resolver      RecipientResolver
	notifications repository.NotificationRepository
	users         repository.UserRepository
	contracts     repository.ContractRepository
	events        event.Emitter
	metrics       *metrics.Metrics
	logger        *logger.Logger
	now           func() time.Time
}

type DispatcherDeps struct {
	Store         Service
	Resolver      RecipientResolver
	Notifications repository.NotificationRepository
	Users         repository.UserRepository
	Contracts     repository.ContractRepository
	// Events receives email work items for high priority notifications
	// and broadcast requests. Optional.
	Events  event.Emitter
	Metrics *metrics.Metrics
	Logger  *logger.Logger
	Now     func() time.Time
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Dispatcher{
		store:         deps.Store,
		resolver:      deps.Resolver,
		notifications: deps.Notifications,
		users:         deps.Users,
		contracts:     deps.Contracts,
		events:        deps.Events,
		metrics:       deps.Metrics,
		logger:        deps.Logger.With("dispatcher"),
		now:           deps.Now,
	}
}

// outgoing is one logical event before fan-out.
type outgoing struct {
	typ      model.NotificationType
	title    string
	message  string
	link     *string
	priority model.Priority
	metadata model.Metadata
	rc       model.ResolutionContext
}

func (d *Dispatcher) ContractCreated(ctx context.Context, contractID, actorID int64) DispatchResult {
	title := d.contractTitle(ctx, contractID)
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationContractCreated,
		title:    "New contract",
		message:  fmt.Sprintf("%s was created", title),
		link:     contractLink(contractID),
		metadata: model.StatusMetadata{ContractID: contractID, To: "created"},
		rc:       model.ResolutionContext{ContractID: &contractID, ActorUserID: &actorID},
	})
}

func (d *Dispatcher) AssignmentMade(ctx context.Context, contractID, assigneeID int64, role string, actorID int64) DispatchResult {
	title := d.contractTitle(ctx, contractID)
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationContractAssigned,
		title:    "You were assigned to a contract",
		message:  fmt.Sprintf("You were added to %s as %s", title, role),
		link:     contractLink(contractID),
		metadata: model.AssignmentMetadata{ContractID: contractID, Role: role},
		rc: model.ResolutionContext{
			ContractID:         &contractID,
			ActorUserID:        &actorID,
			ExplicitRecipients: []int64{assigneeID},
		},
	})
}

func (d *Dispatcher) AssignmentRemoved(ctx context.Context, contractID, userID, actorID int64) DispatchResult {
	title := d.contractTitle(ctx, contractID)
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationAssignmentRemoved,
		title:    "Removed from contract",
		message:  fmt.Sprintf("You are no longer assigned to %s", title),
		metadata: model.AssignmentMetadata{ContractID: contractID},
		rc: model.ResolutionContext{
			ContractID:         &contractID,
			ActorUserID:        &actorID,
			ExplicitRecipients: []int64{userID},
		},
	})
}

func (d *Dispatcher) RoleChanged(ctx context.Context, userID int64, newRole, previousRole string, actorID int64) DispatchResult {
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationRoleChanged,
		title:    "Your role changed",
		message:  fmt.Sprintf("Your role is now %s", newRole),
		metadata: model.RoleMetadata{Role: newRole, PreviousRole: previousRole},
		rc: model.ResolutionContext{
			ActorUserID:        &actorID,
			ExplicitRecipients: []int64{userID},
		},
	})
}

// ContractExpiring is raised by the scanner, so there is no actor.
func (d *Dispatcher) ContractExpiring(ctx context.Context, contractID int64, daysUntilExpiry int) DispatchResult {
	title := d.contractTitle(ctx, contractID)
	priority := model.PriorityNormal
	if daysUntilExpiry <= expiryHighPriorityDays {
		priority = model.PriorityHigh
	}
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationContractExpiring,
		title:    "Contract expiring soon",
		message:  fmt.Sprintf("%s expires in %d %s", title, daysUntilExpiry, plural(daysUntilExpiry, "day", "days")),
		link:     contractLink(contractID),
		priority: priority,
		metadata: model.ExpiryMetadata{
			ContractID:      contractID,
			DaysUntilExpiry: daysUntilExpiry,
			ExpiresAt:       d.now().UTC().AddDate(0, 0, daysUntilExpiry),
		},
		rc: model.ResolutionContext{ContractID: &contractID},
	})
}

// PaymentOverdue is always high priority. A recipient who already got the
// same (contract, days overdue) signal in the last 24 hours is skipped.
func (d *Dispatcher) PaymentOverdue(ctx context.Context, contractID int64, daysOverdue int, amount float64) DispatchResult {
	title := d.contractTitle(ctx, contractID)
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationPaymentOverdue,
		title:    "Payment overdue",
		message:  fmt.Sprintf("Payment for %s is %d %s overdue", title, daysOverdue, plural(daysOverdue, "day", "days")),
		link:     contractLink(contractID),
		priority: model.PriorityHigh,
		metadata: model.PaymentOverdueMetadata{ContractID: contractID, DaysOverdue: daysOverdue, Amount: amount},
		rc:       model.ResolutionContext{ContractID: &contractID},
	})
}

func (d *Dispatcher) CommentAdded(ctx context.Context, contractID, commentID, authorID int64, excerpt string) DispatchResult {
	title := d.contractTitle(ctx, contractID)
	message := truncate(excerpt, 280)
	if message == "" {
		message = "A new comment was posted"
	}
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationCommentAdded,
		title:    fmt.Sprintf("New comment on %s", title),
		message:  message,
		link:     contractLink(contractID),
		metadata: model.CommentMetadata{ContractID: contractID, CommentID: commentID, AuthorID: authorID},
		rc:       model.ResolutionContext{ContractID: &contractID, ActorUserID: &authorID},
	})
}

func (d *Dispatcher) StatusChanged(ctx context.Context, contractID int64, from, to string, actorID int64) DispatchResult {
	title := d.contractTitle(ctx, contractID)
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationStatusChanged,
		title:    "Contract status changed",
		message:  fmt.Sprintf("%s moved from %s to %s", title, from, to),
		link:     contractLink(contractID),
		metadata: model.StatusMetadata{ContractID: contractID, From: from, To: to},
		rc:       model.ResolutionContext{ContractID: &contractID, ActorUserID: &actorID},
	})
}

// Announce notifies every active user except the actor.
func (d *Dispatcher) Announce(ctx context.Context, title, message string, actorID int64) DispatchResult {
	return d.dispatch(ctx, outgoing{
		typ:     model.NotificationSystemAnnouncement,
		title:   title,
		message: message,
		rc:      model.ResolutionContext{ActorUserID: &actorID},
	})
}

// AlertAdmins notifies every active admin except the actor.
func (d *Dispatcher) AlertAdmins(ctx context.Context, title, message string, actorID int64) DispatchResult {
	return d.dispatch(ctx, outgoing{
		typ:      model.NotificationAdminAlert,
		title:    title,
		message:  message,
		priority: model.PriorityHigh,
		rc:       model.ResolutionContext{ActorUserID: &actorID},
	})
}

// NotifyUsers sends to an explicit list of users, bypassing the policy.
func (d *Dispatcher) NotifyUsers(ctx context.Context, typ model.NotificationType, userIDs []int64, title, message string, actorID int64) DispatchResult {
	return d.dispatch(ctx, outgoing{
		typ:     typ,
		title:   title,
		message: message,
		rc:      model.ResolutionContext{ActorUserID: &actorID, ExplicitRecipients: userIDs},
	})
}

// EnqueueBroadcast records a broadcast to be fanned out by the worker.
func (d *Dispatcher) EnqueueBroadcast(ctx context.Context, payload model.BroadcastPayload) error {
	if payload.Audience != model.AudienceAll && payload.Audience != model.AudienceAdmins {
		return apperrors.BadRequest(fmt.Sprintf("unknown audience %q", payload.Audience), nil)
	}
	if d.events == nil {
		return apperrors.Unavailable("background work is not configured", nil)
	}
	if err := d.events.Emit(ctx, model.OutboxNotificationBroadcast, payload); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// Broadcast executes a broadcast work item.
func (d *Dispatcher) Broadcast(ctx context.Context, payload model.BroadcastPayload) (DispatchResult, error) {
	switch payload.Audience {
	case model.AudienceAll:
		return d.Announce(ctx, payload.Title, payload.Message, payload.ActorID), nil
	case model.AudienceAdmins:
		return d.AlertAdmins(ctx, payload.Title, payload.Message, payload.ActorID), nil
	default:
		return DispatchResult{}, fmt.Errorf("unknown audience %q", payload.Audience)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, out outgoing) DispatchResult {
	out.rc.EventType = out.typ
	recipients := d.resolver.Resolve(ctx, out.typ, out.rc).Slice()

	result := DispatchResult{Recipients: len(recipients)}
	for _, userID := range recipients {
		if d.isDuplicate(ctx, userID, out) {
			result.Skipped++
			continue
		}

		created, err := d.store.Create(ctx, &model.Notification{
			UserID:   userID,
			Type:     out.typ,
			Title:    out.title,
			Message:  out.message,
			Link:     out.link,
			Priority: out.priority,
			Metadata: out.metadata,
		})
		if err != nil {
			result.Failed++
			d.logger.Error(err, "Failed to notify recipient",
				"user_id", userID,
				"type", string(out.typ))
			continue
		}
		result.Created++

		if created.Priority == model.PriorityHigh {
			d.enqueueEmail(ctx, created)
		}
	}

	d.logger.Debug("Dispatched",
		"type", string(out.typ),
		"recipients", result.Recipients,
		"created", result.Created,
		"failed", result.Failed,
		"skipped", result.Skipped)
	return result
}

// isDuplicate applies the payment-overdue dedup rule. A failed lookup
// counts as a duplicate so a flaky store cannot cause repeated alerts.
func (d *Dispatcher) isDuplicate(ctx context.Context, userID int64, out outgoing) bool {
	if out.typ != model.NotificationPaymentOverdue {
		return false
	}
	meta, ok := out.metadata.(model.PaymentOverdueMetadata)
	if !ok {
		return false
	}

	exists, err := d.notifications.ExistsPaymentOverdue(ctx, repository.PaymentOverdueQuery{
		UserID:      userID,
		ContractID:  meta.ContractID,
		DaysOverdue: meta.DaysOverdue,
		Since:       d.now().UTC().Add(-dedupWindow),
	})
	if err != nil {
		d.logger.Error(err, "Dedup lookup failed, skipping notification",
			"user_id", userID,
			"contract_id", meta.ContractID)
		return true
	}
	if exists {
		d.metrics.NotificationsDeduplicated.Inc()
	}
	return exists
}

func (d *Dispatcher) enqueueEmail(ctx context.Context, n *model.Notification) {
	if d.events == nil || d.users == nil {
		return
	}
	user, err := d.users.Get(ctx, n.UserID)
	if err != nil {
		d.logger.Error(err, "Failed to load recipient for email", "user_id", n.UserID)
		return
	}
	if user.Email == "" {
		return
	}

	err = d.events.Emit(ctx, model.OutboxNotificationEmail, model.EmailPayload{
		NotificationID: n.ID,
		UserID:         n.UserID,
		To:             user.Email,
		Subject:        n.Title,
		Content:        n.Message,
	})
	if err != nil {
		d.logger.Error(err, "Failed to enqueue notification email",
			"user_id", n.UserID,
			"notification_id", n.ID.String())
	}
}

func (d *Dispatcher) contractTitle(ctx context.Context, contractID int64) string {
	if d.contracts != nil {
		if c, err := d.contracts.Get(ctx, contractID); err == nil && c.Title != "" {
			return c.Title
		}
	}
	return fmt.Sprintf("Contract #%d", contractID)
}

func contractLink(contractID int64) *string {
	link := fmt.Sprintf("/contracts/%d", contractID)
	return &link
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
