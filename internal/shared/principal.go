package shared

import (
	"github.com/google/uuid"
)

// Principal is the authenticated identity as resolved from the users table.
// It is immutable for the lifetime of a request; tenant switches and
// impersonation never modify it, they are layered on via RequestContext.
type Principal struct {
	UserID     uuid.UUID
	CustomerID *uuid.UUID
	RoleID     int64
	RoleName   string
	Email      string
	FullName   string
	Status     string
}

// IsSystemAdmin reports whether the principal holds the system_admin role.
func (p Principal) IsSystemAdmin() bool {
	return p.RoleName == RoleSystemAdmin
}

// IsCustomerSuccess reports whether the principal holds the customer_success role.
func (p Principal) IsCustomerSuccess() bool {
	return p.RoleName == RoleCustomerSuccess
}

// RequestContext is the effective authorization context for one request:
// the principal plus any tenant selection or impersonation overlay derived
// from verified token claims. Request parameters never feed it directly.
type RequestContext struct {
	Principal Principal

	// EffectiveCustomerID is the tenant all tenant-scoped reads and writes
	// are bound to. Defaults to the principal's own customer.
	EffectiveCustomerID *uuid.UUID

	// Impersonation, when non-nil, carries the acted-as user. The effective
	// role below comes from that user while Principal stays the operator.
	Impersonation *Impersonation

	// EffectiveRoleID/EffectiveRoleName drive permission checks. They equal
	// the principal's role unless impersonating.
	EffectiveRoleID   int64
	EffectiveRoleName string
}

// Impersonation records an acted-as user for audit and evaluation.
type Impersonation struct {
	UserID     uuid.UUID
	Email      string
	RoleID     int64
	RoleName   string
	CustomerID *uuid.UUID
}

// Impersonating reports whether an impersonation overlay is active.
func (rc RequestContext) Impersonating() bool {
	return rc.Impersonation != nil
}

// ActorID returns the user id accountable for the request: always the
// operator, never the impersonated user.
func (rc RequestContext) ActorID() uuid.UUID {
	return rc.Principal.UserID
}

// EffectiveUserID returns the user id data reads and writes act as: the
// impersonated user while impersonating, otherwise the principal.
func (rc RequestContext) EffectiveUserID() uuid.UUID {
	if rc.Impersonation != nil {
		return rc.Impersonation.UserID
	}
	return rc.Principal.UserID
}

// SameTenant reports whether id falls inside the effective tenant.
func (rc RequestContext) SameTenant(id uuid.UUID) bool {
	return rc.EffectiveCustomerID != nil && *rc.EffectiveCustomerID == id
}
