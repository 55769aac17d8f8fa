package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/shared"
)

// SessionIssuer persists claim changes on the credential issuer.
type SessionIssuer interface {
	UpdateSessionClaims(ctx context.Context, update ClaimsUpdate) error
}

// Auditor records audit events.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// Service owns the explicit context-change command and the invitation flow.
type Service struct {
	repo      Repository
	overlay   *Overlay
	issuer    SessionIssuer
	audit     Auditor
	inviteTTL time.Duration
	now       func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, overlay *Overlay, issuer SessionIssuer, auditor Auditor, inviteTTL time.Duration) *Service {
	if inviteTTL <= 0 {
		inviteTTL = 7 * 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		overlay:   overlay,
		issuer:    issuer,
		audit:     auditor,
		inviteTTL: inviteTTL,
		now:       time.Now,
	}
}

// ContextChange is a requested tenant selection and/or impersonation.
type ContextChange struct {
	CustomerID         *uuid.UUID
	ImpersonatedUserID *uuid.UUID
}

// ChangeContext validates change against the caller's authority and, once
// allowed, persists the new claims through the issuer. The change only
// reaches future requests after the caller refreshes its token; nothing is
// smuggled into the current one. Denied attempts are audited.
func (s *Service) ChangeContext(ctx context.Context, rc *shared.RequestContext, sessionID string, change ContextChange) (shared.RequestContext, error) {
	if rc == nil {
		return shared.RequestContext{}, shared.ErrUnauthenticated
	}
	if sessionID == "" {
		return shared.RequestContext{}, fmt.Errorf("%w: session-bound credential required", shared.ErrValidation)
	}

	next, err := s.overlay.Apply(ctx, rc.Principal, change.CustomerID, change.ImpersonatedUserID)
	if err != nil {
		if errors.Is(err, shared.ErrForbidden) {
			s.recordDeniedChange(ctx, rc, change)
		}
		return shared.RequestContext{}, err
	}

	// A tenant switch must point at a real customer. Overlay skips this on
	// the per-request path; the command path validates once, here.
	if change.CustomerID != nil {
		exists, err := s.repo.CustomerExists(ctx, *change.CustomerID)
		if err != nil {
			return shared.RequestContext{}, fmt.Errorf("auth: check customer: %w", err)
		}
		if !exists {
			return shared.RequestContext{}, fmt.Errorf("%w: customer", shared.ErrNotFound)
		}
	}

	update := ClaimsUpdate{
		SessionID:          sessionID,
		CustomerID:         change.CustomerID,
		ImpersonatedUserID: change.ImpersonatedUserID,
	}
	if err := s.issuer.UpdateSessionClaims(ctx, update); err != nil {
		return shared.RequestContext{}, err
	}

	s.recordChange(ctx, rc, change)
	return next, nil
}

// ClearContext removes tenant selection and impersonation from the session.
func (s *Service) ClearContext(ctx context.Context, rc *shared.RequestContext, sessionID string) error {
	if rc == nil {
		return shared.ErrUnauthenticated
	}
	if sessionID == "" {
		return fmt.Errorf("%w: session-bound credential required", shared.ErrValidation)
	}
	if err := s.issuer.UpdateSessionClaims(ctx, ClaimsUpdate{SessionID: sessionID}); err != nil {
		return err
	}
	if s.audit != nil {
		event := audit.EventFromContext(rc, audit.ActionContextCleared, "session", sessionID)
		if rc.Impersonating() {
			event.Action = audit.ActionImpersonationStopped
		}
		_ = s.audit.Record(ctx, event)
	}
	return nil
}

// AcceptInvitation activates an invited user when the presented token
// matches the stored hash and the invitation has not expired. Every failure
// shape returns the same ErrUnauthenticated so the public endpoint leaks
// nothing about which part was wrong.
func (s *Service) AcceptInvitation(ctx context.Context, email, token string) error {
	email = shared.NormalizeEmail(email)
	if email == "" || token == "" {
		return shared.ErrUnauthenticated
	}
	rec, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrUnauthenticated
		}
		return fmt.Errorf("auth: load invited user: %w", err)
	}
	if rec.Status != shared.UserStatusInvited || rec.InviteTokenHash == nil || rec.DeletedAt != nil {
		return shared.ErrUnauthenticated
	}
	if rec.InvitedAt == nil || s.now().After(rec.InvitedAt.Add(s.inviteTTL)) {
		return shared.ErrUnauthenticated
	}
	if bcrypt.CompareHashAndPassword([]byte(*rec.InviteTokenHash), []byte(token)) != nil {
		return shared.ErrUnauthenticated
	}

	if err := s.repo.ActivateUser(ctx, rec.ID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Lost a race with another acceptance or a concurrent delete.
			return shared.ErrUnauthenticated
		}
		return fmt.Errorf("auth: activate user: %w", err)
	}

	if s.audit != nil {
		actor := rec.ID
		_ = s.audit.Record(ctx, audit.Event{
			ActorUserID: &actor,
			CustomerID:  rec.CustomerID,
			Action:      audit.ActionInvitationAccepted,
			Entity:      "user",
			EntityID:    rec.ID.String(),
		})
	}
	return nil
}

func (s *Service) recordChange(ctx context.Context, rc *shared.RequestContext, change ContextChange) {
	if s.audit == nil {
		return
	}
	event := audit.EventFromContext(rc, audit.ActionContextChanged, "session", rc.Principal.UserID.String())
	event.Meta = changeMeta(change)
	if change.ImpersonatedUserID != nil {
		event.Action = audit.ActionImpersonationStarted
	}
	_ = s.audit.Record(ctx, event)
}

func (s *Service) recordDeniedChange(ctx context.Context, rc *shared.RequestContext, change ContextChange) {
	if s.audit == nil {
		return
	}
	event := audit.EventFromContext(rc, audit.ActionAccessDenied, "session", rc.Principal.UserID.String())
	event.Meta = changeMeta(change)
	_ = s.audit.Record(ctx, event)
}

func changeMeta(change ContextChange) map[string]any {
	meta := map[string]any{}
	if change.CustomerID != nil {
		meta["customer_id"] = change.CustomerID.String()
	}
	if change.ImpersonatedUserID != nil {
		meta["impersonated_user_id"] = change.ImpersonatedUserID.String()
	}
	return meta
}
