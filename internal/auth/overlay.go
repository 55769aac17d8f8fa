package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/shared"
)

// Overlay layers tenant selection and impersonation onto a principal. The
// same rules run on every request (consuming persisted claims) and when a
// context change is requested explicitly, so a hint that is no longer
// authorized dies here with ErrForbidden.
type Overlay struct {
	repo Repository
}

// NewOverlay constructs an Overlay.
func NewOverlay(repo Repository) *Overlay {
	return &Overlay{repo: repo}
}

// Apply validates the requested overlay against the principal's authority
// and returns the effective request context. The principal is never
// modified; audit always sees the operator.
func (o *Overlay) Apply(ctx context.Context, principal shared.Principal, customerID, impersonateID *uuid.UUID) (shared.RequestContext, error) {
	rc := shared.RequestContext{
		Principal:           principal,
		EffectiveCustomerID: principal.CustomerID,
		EffectiveRoleID:     principal.RoleID,
		EffectiveRoleName:   principal.RoleName,
	}

	if customerID != nil {
		if !principal.IsSystemAdmin() && !sameCustomer(principal.CustomerID, *customerID) {
			return shared.RequestContext{}, fmt.Errorf("%w: tenant switch requires system_admin", shared.ErrForbidden)
		}
		id := *customerID
		rc.EffectiveCustomerID = &id
	}

	if impersonateID != nil && *impersonateID != principal.UserID {
		target, err := o.authorizeImpersonation(ctx, principal, *impersonateID)
		if err != nil {
			return shared.RequestContext{}, err
		}
		rc.Impersonation = &shared.Impersonation{
			UserID:     target.ID,
			Email:      target.Email,
			RoleID:     target.RoleID,
			RoleName:   target.RoleName,
			CustomerID: target.CustomerID,
		}
		// The acted-as user's role and tenant drive every downstream check.
		rc.EffectiveCustomerID = target.CustomerID
		rc.EffectiveRoleID = target.RoleID
		rc.EffectiveRoleName = target.RoleName
	}

	return rc, nil
}

func (o *Overlay) authorizeImpersonation(ctx context.Context, principal shared.Principal, targetID uuid.UUID) (*UserRecord, error) {
	target, err := o.repo.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Nonexistent targets answer the same as unauthorized ones.
			return nil, fmt.Errorf("%w: impersonation target unavailable", shared.ErrForbidden)
		}
		return nil, fmt.Errorf("auth: load impersonation target: %w", err)
	}
	if target.Status == shared.UserStatusDeleted || target.DeletedAt != nil {
		return nil, fmt.Errorf("%w: impersonation target unavailable", shared.ErrForbidden)
	}

	switch {
	case principal.IsSystemAdmin():
		return target, nil
	case principal.IsCustomerSuccess():
		if target.CustomerID == nil {
			return nil, fmt.Errorf("%w: impersonation target outside granted tenants", shared.ErrForbidden)
		}
		granted, err := o.repo.HasCustomerGrant(ctx, principal.UserID, *target.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("auth: check customer grant: %w", err)
		}
		if !granted {
			return nil, fmt.Errorf("%w: impersonation target outside granted tenants", shared.ErrForbidden)
		}
		return target, nil
	default:
		return nil, fmt.Errorf("%w: impersonation requires system_admin or customer_success", shared.ErrForbidden)
	}
}

func sameCustomer(own *uuid.UUID, requested uuid.UUID) bool {
	return own != nil && *own == requested
}
