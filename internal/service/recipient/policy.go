package recipient

import "github.com/jwalitptl/contract-admin/internal/model"

// Policy decides which groups of users hear about an event type.
type Policy struct {
	IncludeAdmins bool
	OnlyAssigned  bool
	ExcludeActor  bool
	IsGlobal      bool
	AdminOnly     bool
}

// defaultPolicy applies to types missing from the table.
var defaultPolicy = Policy{OnlyAssigned: true, ExcludeActor: true}

var policies = map[model.NotificationType]Policy{
	model.NotificationContractCreated:    {IncludeAdmins: true, OnlyAssigned: true, ExcludeActor: true},
	model.NotificationContractAssigned:   {OnlyAssigned: true, ExcludeActor: true},
	model.NotificationAssignmentRemoved:  {OnlyAssigned: true, ExcludeActor: true},
	model.NotificationRoleChanged:        {ExcludeActor: true},
	model.NotificationContractExpiring:   {IncludeAdmins: true, OnlyAssigned: true},
	model.NotificationPaymentOverdue:     {IncludeAdmins: true, OnlyAssigned: true},
	model.NotificationCommentAdded:       {OnlyAssigned: true, ExcludeActor: true},
	model.NotificationStatusChanged:      {IncludeAdmins: true, OnlyAssigned: true, ExcludeActor: true},
	model.NotificationSystemAnnouncement: {IsGlobal: true, ExcludeActor: true},
	model.NotificationAdminAlert:         {AdminOnly: true, ExcludeActor: true},
}

// PolicyFor returns the policy for t, or the conservative default.
func PolicyFor(t model.NotificationType) Policy {
	if p, ok := policies[t]; ok {
		return p
	}
	return defaultPolicy
}
