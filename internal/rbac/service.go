package rbac

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/1-to-100/backoffice/internal/shared"
)

// Service evaluates authorization requirements against role permission
// sets. Decisions depend only on the effective role in the request
// context, so an impersonated request is judged by the acted-as user's
// role, never the operator's.
type Service struct {
	store Store
	cache *Cache
	group singleflight.Group
}

// NewService constructs a Service.
func NewService(store Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

// Authorize checks rc against req. Role and permission gates fail
// independently; when both are present both must pass.
func (s *Service) Authorize(ctx context.Context, rc *shared.RequestContext, req Requirement) error {
	if rc == nil {
		return shared.ErrUnauthenticated
	}
	if req.empty() {
		return nil
	}

	if len(req.AnyRole) > 0 && !roleMatches(req.AnyRole, rc.EffectiveRoleName) {
		return fmt.Errorf("%w: role not permitted", shared.ErrForbidden)
	}

	if len(req.AnyPermission) > 0 {
		set, err := s.RolePermissionSet(ctx, rc.EffectiveRoleID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("%w: effective role unknown", shared.ErrForbidden)
			}
			return err
		}
		if !set.HasAny(req.AnyPermission) {
			return fmt.Errorf("%w: missing permission", shared.ErrForbidden)
		}
	}
	return nil
}

// RolePermissionSet returns the canonical permission set for a role,
// served from cache when possible. Concurrent misses share one rebuild.
func (s *Service) RolePermissionSet(ctx context.Context, roleID int64) (PermissionSet, error) {
	names, err := s.cache.FetchPermissions(ctx, roleID, func(ctx context.Context) ([]string, error) {
		return s.loadPermissionNames(ctx, roleID)
	})
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(names), nil
}

func (s *Service) loadPermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	ch := s.group.DoChan(fmt.Sprintf("role:%d", roleID), func() (any, error) {
		names, _, err := s.store.RolePermissionNames(ctx, roleID)
		return names, err
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		names, _ := res.Val.([]string)
		return names, nil
	}
}

// EffectivePermissions returns the sorted permission names for a role.
func (s *Service) EffectivePermissions(ctx context.Context, roleID int64) ([]string, error) {
	set, err := s.RolePermissionSet(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return set.Names(), nil
}

// Catalog lists every known permission.
func (s *Service) Catalog(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// Invalidate bumps the permission cache version. Role mutations call it
// so changes propagate within the cache TTL at the latest.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Warm precomputes the permission set of every role, returning how many
// were loaded.
func (s *Service) Warm(ctx context.Context) (int, error) {
	ids, err := s.store.ListRoleIDs(ctx)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if _, err := s.RolePermissionSet(ctx, id); err != nil {
			return i, fmt.Errorf("rbac: warm role %d: %w", id, err)
		}
	}
	return len(ids), nil
}

func roleMatches(allowed []string, role string) bool {
	for _, name := range allowed {
		if name == role {
			return true
		}
	}
	return false
}
