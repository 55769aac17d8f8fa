package roles

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Invalidator bumps cached role permission sets after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// Service handles role administration. Every write guards the system roles
// first: seeded roles stay immutable no matter what the caller is allowed
// to do elsewhere.
type Service struct {
	repo  Repository
	rbac  Invalidator
	audit Auditor
}

// NewService builds a Service instance.
func NewService(repo Repository, invalidator Invalidator, auditor Auditor) *Service {
	return &Service{repo: repo, rbac: invalidator, audit: auditor}
}

// List returns all roles with user counts.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// Get returns one role.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// Create adds a custom role. Reserved machine names are rejected so a custom
// role can never shadow a seeded one.
func (s *Service) Create(ctx context.Context, rc *shared.RequestContext, input CreateRoleInput) (Role, error) {
	input.Name = strings.TrimSpace(input.Name)
	if shared.IsSystemRoleName(input.Name) {
		return Role{}, fmt.Errorf("%w: role name %q is reserved", shared.ErrValidation, input.Name)
	}
	input.Permissions = normalizePermissionNames(input.Permissions)

	role, err := s.repo.CreateRole(ctx, input)
	if err != nil {
		return Role{}, err
	}
	s.bump(ctx)

	event := audit.EventFromContext(rc, "role.created", "role", strconv.FormatInt(role.ID, 10))
	event.Meta = map[string]any{"name": role.Name}
	_ = s.audit.Record(ctx, event)
	return role, nil
}

// Update renames or redescribes a custom role.
func (s *Service) Update(ctx context.Context, rc *shared.RequestContext, id int64, input UpdateRoleInput) (Role, error) {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if current.IsSystem {
		return Role{}, fmt.Errorf("%w: system roles are immutable", shared.ErrForbidden)
	}
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if shared.IsSystemRoleName(trimmed) {
			return Role{}, fmt.Errorf("%w: role name %q is reserved", shared.ErrValidation, trimmed)
		}
		input.Name = &trimmed
	}

	role, err := s.repo.UpdateRole(ctx, id, input)
	if err != nil {
		return Role{}, err
	}
	s.bump(ctx)

	event := audit.EventFromContext(rc, "role.updated", "role", strconv.FormatInt(role.ID, 10))
	event.Meta = map[string]any{"name": role.Name}
	_ = s.audit.Record(ctx, event)
	return role, nil
}

// Delete removes a custom role. Roles still assigned to users surface the
// repository conflict unchanged.
func (s *Service) Delete(ctx context.Context, rc *shared.RequestContext, id int64) error {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if current.IsSystem {
		return fmt.Errorf("%w: system roles are immutable", shared.ErrForbidden)
	}

	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)

	event := audit.EventFromContext(rc, "role.deleted", "role", strconv.FormatInt(id, 10))
	event.Meta = map[string]any{"name": current.Name}
	_ = s.audit.Record(ctx, event)
	return nil
}

// ReplacePermissions swaps the role's full permission set and returns the
// names that were applied.
func (s *Service) ReplacePermissions(ctx context.Context, rc *shared.RequestContext, id int64, permissions []string) ([]string, error) {
	current, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsSystem {
		return nil, fmt.Errorf("%w: system roles are immutable", shared.ErrForbidden)
	}

	names := normalizePermissionNames(permissions)
	if err := s.repo.ReplacePermissions(ctx, id, names); err != nil {
		return nil, err
	}
	s.bump(ctx)

	event := audit.EventFromContext(rc, "role.permissions_replaced", "role", strconv.FormatInt(id, 10))
	event.Meta = map[string]any{"name": current.Name, "permissions": names}
	_ = s.audit.Record(ctx, event)
	return names, nil
}

// bump invalidates cached permission sets. A failed bump only extends
// staleness to the cache TTL, so it never fails the mutation.
func (s *Service) bump(ctx context.Context) {
	if s.rbac == nil {
		return
	}
	_ = s.rbac.Invalidate(ctx)
}

// normalizePermissionNames trims, deduplicates and sorts permission names.
func normalizePermissionNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
