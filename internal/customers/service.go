package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// Service handles tenant administration and customer_success ownership
// grants. Revoked grants take effect on the target's next request; the
// overlay re-reads grants every time.
type Service struct {
	repo  Repository
	audit Auditor
}

// NewService builds a Service instance.
func NewService(repo Repository, auditor Auditor) *Service {
	return &Service{repo: repo, audit: auditor}
}

// List returns one page of tenants.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Customer, shared.Pagination, error) {
	customers, total, err := s.repo.ListCustomers(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return customers, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get returns one tenant.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// Create adds an active tenant.
func (s *Service) Create(ctx context.Context, rc *shared.RequestContext, name string) (Customer, error) {
	name = shared.NormalizeName(name)
	if name == "" {
		return Customer{}, fmt.Errorf("%w: customer name required", shared.ErrValidation)
	}

	customer, err := s.repo.CreateCustomer(ctx, name)
	if err != nil {
		return Customer{}, err
	}

	event := audit.EventFromContext(rc, "customer.created", "customer", customer.ID.String())
	event.Meta = map[string]any{"name": customer.Name}
	_ = s.audit.Record(ctx, event)
	return customer, nil
}

// Update renames or suspends a tenant.
func (s *Service) Update(ctx context.Context, rc *shared.RequestContext, id uuid.UUID, input UpdateCustomerInput) (Customer, error) {
	if input.Status != nil && *input.Status != StatusActive && *input.Status != StatusSuspended {
		return Customer{}, fmt.Errorf("%w: status must be active or suspended", shared.ErrValidation)
	}
	if input.Name != nil {
		normalized := shared.NormalizeName(*input.Name)
		if normalized == "" {
			return Customer{}, fmt.Errorf("%w: customer name required", shared.ErrValidation)
		}
		input.Name = &normalized
	}

	customer, err := s.repo.UpdateCustomer(ctx, id, input)
	if err != nil {
		return Customer{}, err
	}

	event := audit.EventFromContext(rc, "customer.updated", "customer", customer.ID.String())
	event.Meta = map[string]any{"name": customer.Name, "status": customer.Status}
	_ = s.audit.Record(ctx, event)
	return customer, nil
}

// Delete removes an empty tenant.
func (s *Service) Delete(ctx context.Context, rc *shared.RequestContext, id uuid.UUID) error {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}

	event := audit.EventFromContext(rc, "customer.deleted", "customer", id.String())
	event.Meta = map[string]any{"name": customer.Name}
	_ = s.audit.Record(ctx, event)
	return nil
}

// Grants lists the ownership grants on a tenant.
func (s *Service) Grants(ctx context.Context, customerID uuid.UUID) ([]Grant, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.repo.ListGrants(ctx, customerID)
}

// AddGrant grants a customer_success user ownership of a tenant. Grants on
// any other role are meaningless to the overlay and are rejected.
func (s *Service) AddGrant(ctx context.Context, rc *shared.RequestContext, customerID, userID uuid.UUID) (Grant, error) {
	if _, err := s.repo.GetCustomer(ctx, customerID); err != nil {
		return Grant{}, err
	}
	roleName, err := s.repo.UserRole(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Grant{}, fmt.Errorf("%w: unknown user", shared.ErrValidation)
		}
		return Grant{}, err
	}
	if roleName != shared.RoleCustomerSuccess {
		return Grant{}, fmt.Errorf("%w: grants apply to customer_success users only", shared.ErrValidation)
	}

	grant, err := s.repo.AddGrant(ctx, userID, customerID)
	if err != nil {
		return Grant{}, err
	}

	event := audit.EventFromContext(rc, "customer.grant_added", "customer", customerID.String())
	event.Meta = map[string]any{"user_id": userID.String()}
	_ = s.audit.Record(ctx, event)
	return grant, nil
}

// RemoveGrant revokes an ownership grant.
func (s *Service) RemoveGrant(ctx context.Context, rc *shared.RequestContext, customerID, userID uuid.UUID) error {
	if err := s.repo.RemoveGrant(ctx, userID, customerID); err != nil {
		return err
	}

	event := audit.EventFromContext(rc, "customer.grant_removed", "customer", customerID.String())
	event.Meta = map[string]any{"user_id": userID.String()}
	_ = s.audit.Record(ctx, event)
	return nil
}
