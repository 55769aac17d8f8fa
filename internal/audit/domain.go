package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/shared"
)

// Audit actions. Guard denials and context changes are first-class events;
// CRUD services record their own mutations under entity-scoped actions.
const (
	ActionAccessDenied         = "auth.access_denied"
	ActionContextChanged       = "auth.context_changed"
	ActionContextCleared       = "auth.context_cleared"
	ActionImpersonationStarted = "auth.impersonation_started"
	ActionImpersonationStopped = "auth.impersonation_stopped"
	ActionInvitationAccepted   = "user.invitation_accepted"
)

// Event is one audit record. ActorUserID is always the operator; when a
// request runs under impersonation ActingAsUserID carries the target so the
// acted-as view never hides who acted.
type Event struct {
	ActorUserID    *uuid.UUID
	ActingAsUserID *uuid.UUID
	CustomerID     *uuid.UUID
	Action         string
	Entity         string
	EntityID       string
	Meta           map[string]any
	At             time.Time
}

// EventFromContext prefills actor, acting-as and tenant scope from the
// request's authorization context.
func EventFromContext(rc *shared.RequestContext, action, entity, entityID string) Event {
	event := Event{
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
	}
	if rc == nil {
		return event
	}
	actor := rc.Principal.UserID
	event.ActorUserID = &actor
	event.CustomerID = rc.EffectiveCustomerID
	if rc.Impersonation != nil {
		acting := rc.Impersonation.UserID
		event.ActingAsUserID = &acting
	}
	return event
}

// TimelineFilters narrows the audit listing.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	ActorID    *uuid.UUID
	CustomerID *uuid.UUID
	Entity     string
	Action     string
	Page       int
	PageSize   int
}

// TimelineRow is one listed audit record.
type TimelineRow struct {
	ID             int64          `json:"id"`
	At             time.Time      `json:"at"`
	ActorUserID    *uuid.UUID     `json:"actorUserId"`
	ActorEmail     string         `json:"actorEmail,omitempty"`
	ActingAsUserID *uuid.UUID     `json:"actingAsUserId,omitempty"`
	CustomerID     *uuid.UUID     `json:"customerId,omitempty"`
	Action         string         `json:"action"`
	Entity         string         `json:"entity"`
	EntityID       string         `json:"entityId"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}
