package teams

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

// Service handles tenant-scoped team administration. Teams outside the
// caller's tenant mask as not found, matching the user surface.
type Service struct {
	repo  Repository
	audit Auditor
}

// NewService builds a Service instance.
func NewService(repo Repository, auditor Auditor) *Service {
	return &Service{repo: repo, audit: auditor}
}

func scope(rc *shared.RequestContext) (unscoped bool, customerID *uuid.UUID) {
	if rc.EffectiveCustomerID != nil {
		return false, rc.EffectiveCustomerID
	}
	if rc.Principal.IsSystemAdmin() || rc.Principal.IsCustomerSuccess() {
		return true, nil
	}
	return false, nil
}

func visible(rc *shared.RequestContext, team Team) bool {
	unscoped, customerID := scope(rc)
	if unscoped {
		return true
	}
	return customerID != nil && team.CustomerID == *customerID
}

// List returns one page of teams visible to the caller.
func (s *Service) List(ctx context.Context, rc *shared.RequestContext, filters ListFilters) ([]Team, shared.Pagination, error) {
	if rc == nil {
		return nil, shared.Pagination{}, shared.ErrUnauthenticated
	}
	filters.Unscoped, filters.CustomerID = scope(rc)
	if !filters.Unscoped && filters.CustomerID == nil {
		// Tenantless principals own no teams.
		return nil, shared.NewPagination(filters.Page, filters.PerPage, 0), nil
	}
	teams, total, err := s.repo.ListTeams(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return teams, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get returns one visible team. Foreign-tenant teams mask as not found.
func (s *Service) Get(ctx context.Context, rc *shared.RequestContext, id uuid.UUID) (Team, error) {
	if rc == nil {
		return Team{}, shared.ErrUnauthenticated
	}
	team, err := s.repo.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	if !visible(rc, team) {
		return Team{}, shared.ErrNotFound
	}
	return team, nil
}

// Create adds a team to a tenant. Without an explicit customer the team
// lands in the caller's effective tenant.
func (s *Service) Create(ctx context.Context, rc *shared.RequestContext, input CreateTeamInput) (Team, error) {
	if rc == nil {
		return Team{}, shared.ErrUnauthenticated
	}
	input.Name = shared.NormalizeName(input.Name)
	if input.Name == "" {
		return Team{}, fmt.Errorf("%w: team name required", shared.ErrValidation)
	}
	if input.CustomerID == nil {
		input.CustomerID = rc.EffectiveCustomerID
	}
	if input.CustomerID == nil {
		return Team{}, fmt.Errorf("%w: team must belong to a customer", shared.ErrValidation)
	}
	if !rc.Principal.IsSystemAdmin() {
		if rc.EffectiveCustomerID == nil || *input.CustomerID != *rc.EffectiveCustomerID {
			return Team{}, fmt.Errorf("%w: teams can only be created in the current tenant", shared.ErrForbidden)
		}
	}

	team, err := s.repo.CreateTeam(ctx, *input.CustomerID, input.Name, input.Description)
	if err != nil {
		return Team{}, err
	}

	event := audit.EventFromContext(rc, "team.created", "team", team.ID.String())
	event.Meta = map[string]any{"name": team.Name, "customer_id": team.CustomerID.String()}
	_ = s.audit.Record(ctx, event)
	return team, nil
}

// Update applies a partial update to a visible team.
func (s *Service) Update(ctx context.Context, rc *shared.RequestContext, id uuid.UUID, input UpdateTeamInput) (Team, error) {
	if rc == nil {
		return Team{}, shared.ErrUnauthenticated
	}
	if _, err := s.Get(ctx, rc, id); err != nil {
		return Team{}, err
	}
	if input.Name != nil {
		normalized := shared.NormalizeName(*input.Name)
		if normalized == "" {
			return Team{}, fmt.Errorf("%w: team name required", shared.ErrValidation)
		}
		input.Name = &normalized
	}

	team, err := s.repo.UpdateTeam(ctx, id, input)
	if err != nil {
		return Team{}, err
	}

	_ = s.audit.Record(ctx, audit.EventFromContext(rc, "team.updated", "team", team.ID.String()))
	return team, nil
}

// Delete removes a visible team and its memberships.
func (s *Service) Delete(ctx context.Context, rc *shared.RequestContext, id uuid.UUID) error {
	if rc == nil {
		return shared.ErrUnauthenticated
	}
	team, err := s.Get(ctx, rc, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTeam(ctx, id); err != nil {
		return err
	}

	event := audit.EventFromContext(rc, "team.deleted", "team", id.String())
	event.Meta = map[string]any{"name": team.Name}
	_ = s.audit.Record(ctx, event)
	return nil
}

// Members lists the members of a visible team.
func (s *Service) Members(ctx context.Context, rc *shared.RequestContext, teamID uuid.UUID) ([]Member, error) {
	if _, err := s.Get(ctx, rc, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, teamID)
}

// AddMember adds a user of the team's tenant to a visible team.
func (s *Service) AddMember(ctx context.Context, rc *shared.RequestContext, teamID, userID uuid.UUID) (Member, error) {
	team, err := s.Get(ctx, rc, teamID)
	if err != nil {
		return Member{}, err
	}

	customerID, status, err := s.repo.UserTenant(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Member{}, fmt.Errorf("%w: unknown user", shared.ErrValidation)
		}
		return Member{}, err
	}
	if status == shared.UserStatusDeleted {
		return Member{}, fmt.Errorf("%w: unknown user", shared.ErrValidation)
	}
	if customerID == nil || *customerID != team.CustomerID {
		return Member{}, fmt.Errorf("%w: user belongs to a different customer", shared.ErrValidation)
	}

	member, err := s.repo.AddMember(ctx, teamID, userID)
	if err != nil {
		return Member{}, err
	}

	event := audit.EventFromContext(rc, "team.member_added", "team", teamID.String())
	event.Meta = map[string]any{"user_id": userID.String()}
	_ = s.audit.Record(ctx, event)
	return member, nil
}

// RemoveMember removes a membership from a visible team.
func (s *Service) RemoveMember(ctx context.Context, rc *shared.RequestContext, teamID, userID uuid.UUID) error {
	if _, err := s.Get(ctx, rc, teamID); err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, teamID, userID); err != nil {
		return err
	}

	event := audit.EventFromContext(rc, "team.member_removed", "team", teamID.String())
	event.Meta = map[string]any{"user_id": userID.String()}
	_ = s.audit.Record(ctx, event)
	return nil
}
