package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// Service handles tenant-scoped user administration. Lookups outside the
// caller's tenant report not found rather than forbidden, so the surface
// never confirms that a foreign account exists.
type Service struct {
	repo  Repository
	audit Auditor
}

// NewService builds a Service instance.
func NewService(repo Repository, auditor Auditor) *Service {
	return &Service{repo: repo, audit: auditor}
}

// scope derives tenant visibility from the request context. Back-office
// staff without a tenant selection see everything; everyone else is bound
// to the effective tenant.
func scope(rc *shared.RequestContext) (unscoped bool, customerID *uuid.UUID) {
	if rc.EffectiveCustomerID != nil {
		return false, rc.EffectiveCustomerID
	}
	if rc.Principal.IsSystemAdmin() || rc.Principal.IsCustomerSuccess() {
		return true, nil
	}
	return false, nil
}

func visible(rc *shared.RequestContext, user User) bool {
	unscoped, customerID := scope(rc)
	if unscoped {
		return true
	}
	if customerID == nil {
		return user.CustomerID == nil
	}
	return user.CustomerID != nil && *user.CustomerID == *customerID
}

// List returns one page of users visible to the caller.
func (s *Service) List(ctx context.Context, rc *shared.RequestContext, filters ListFilters) ([]User, shared.Pagination, error) {
	if rc == nil {
		return nil, shared.Pagination{}, shared.ErrUnauthenticated
	}
	filters.Unscoped, filters.CustomerID = scope(rc)
	users, total, err := s.repo.ListUsers(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, shared.NewPagination(filters.Page, filters.PerPage, total), nil
}

// Get returns one visible user. Foreign-tenant accounts mask as not found.
func (s *Service) Get(ctx context.Context, rc *shared.RequestContext, id uuid.UUID) (User, error) {
	if rc == nil {
		return User{}, shared.ErrUnauthenticated
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !visible(rc, user) {
		return User{}, shared.ErrNotFound
	}
	return user, nil
}

// inviteTokenBytes sized so the hex token comfortably exceeds guessing
// while staying under bcrypt's 72-byte input limit.
const inviteTokenBytes = 32

func newInviteToken() (raw, hash string, err error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("users: generate invite token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	digest, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("users: hash invite token: %w", err)
	}
	return raw, string(digest), nil
}

// assignableRole checks role assignment authority. Only system admins may
// hand out the back-office roles.
func (s *Service) assignableRole(ctx context.Context, rc *shared.RequestContext, roleID int64) error {
	name, err := s.repo.RoleName(ctx, roleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: unknown role", shared.ErrValidation)
		}
		return err
	}
	if rc.Principal.IsSystemAdmin() {
		return nil
	}
	if name == shared.RoleSystemAdmin || name == shared.RoleCustomerSuccess {
		return fmt.Errorf("%w: role %q cannot be assigned", shared.ErrForbidden, name)
	}
	return nil
}

// Invite creates an invited account and returns it together with the raw
// invite token. The token is shown exactly once; only its hash is stored.
func (s *Service) Invite(ctx context.Context, rc *shared.RequestContext, input InviteUserInput) (User, string, error) {
	if rc == nil {
		return User{}, "", shared.ErrUnauthenticated
	}
	input.Email = shared.NormalizeEmail(input.Email)
	input.FullName = shared.NormalizeName(input.FullName)

	if input.CustomerID == nil {
		input.CustomerID = rc.EffectiveCustomerID
	}
	if !rc.Principal.IsSystemAdmin() {
		if rc.EffectiveCustomerID == nil || input.CustomerID == nil || *input.CustomerID != *rc.EffectiveCustomerID {
			return User{}, "", fmt.Errorf("%w: users can only be invited into the current tenant", shared.ErrForbidden)
		}
	}
	if err := s.assignableRole(ctx, rc, input.RoleID); err != nil {
		return User{}, "", err
	}

	raw, hash, err := newInviteToken()
	if err != nil {
		return User{}, "", err
	}
	user, err := s.repo.InviteUser(ctx, input, hash)
	if err != nil {
		return User{}, "", err
	}

	event := audit.EventFromContext(rc, "user.invited", "user", user.ID.String())
	event.Meta = map[string]any{"email": user.Email, "role_id": user.RoleID}
	_ = s.audit.Record(ctx, event)
	return user, raw, nil
}

// Update applies a partial update to a visible live account.
func (s *Service) Update(ctx context.Context, rc *shared.RequestContext, id uuid.UUID, input UpdateUserInput) (User, error) {
	if rc == nil {
		return User{}, shared.ErrUnauthenticated
	}
	current, err := s.Get(ctx, rc, id)
	if err != nil {
		return User{}, err
	}
	if current.Status == StatusDeleted {
		return User{}, shared.ErrNotFound
	}
	if input.Status != nil && *input.Status != StatusActive && *input.Status != StatusInactive {
		return User{}, fmt.Errorf("%w: status must be active or inactive", shared.ErrValidation)
	}
	if input.FullName != nil {
		trimmed := shared.NormalizeName(*input.FullName)
		input.FullName = &trimmed
	}
	if input.RoleID != nil {
		if err := s.assignableRole(ctx, rc, *input.RoleID); err != nil {
			return User{}, err
		}
	}

	user, err := s.repo.UpdateUser(ctx, id, input)
	if err != nil {
		return User{}, err
	}

	_ = s.audit.Record(ctx, audit.EventFromContext(rc, "user.updated", "user", user.ID.String()))
	return user, nil
}

// Delete soft-deletes a visible account. Operators cannot delete themselves.
func (s *Service) Delete(ctx context.Context, rc *shared.RequestContext, id uuid.UUID) error {
	if rc == nil {
		return shared.ErrUnauthenticated
	}
	if rc.Principal.UserID == id {
		return fmt.Errorf("%w: cannot delete own account", shared.ErrValidation)
	}
	current, err := s.Get(ctx, rc, id)
	if err != nil {
		return err
	}
	if current.Status == StatusDeleted {
		return shared.ErrNotFound
	}

	user, err := s.repo.SoftDeleteUser(ctx, id)
	if err != nil {
		return err
	}

	event := audit.EventFromContext(rc, "user.deleted", "user", user.ID.String())
	event.Meta = map[string]any{"email": user.Email}
	_ = s.audit.Record(ctx, event)
	return nil
}

// Restore brings a visible soft-deleted account back.
func (s *Service) Restore(ctx context.Context, rc *shared.RequestContext, id uuid.UUID) (User, error) {
	if rc == nil {
		return User{}, shared.ErrUnauthenticated
	}
	current, err := s.Get(ctx, rc, id)
	if err != nil {
		return User{}, err
	}
	if current.Status != StatusDeleted {
		return User{}, fmt.Errorf("%w: user is not deleted", shared.ErrConflict)
	}

	user, err := s.repo.RestoreUser(ctx, id)
	if err != nil {
		return User{}, err
	}

	_ = s.audit.Record(ctx, audit.EventFromContext(rc, "user.restored", "user", user.ID.String()))
	return user, nil
}

// ExpireInvitations deactivates accounts whose invitation aged past cutoff
// without being accepted. Run from the background sweep, not a request.
func (s *Service) ExpireInvitations(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.repo.ExpireInvitations(ctx, cutoff)
}
