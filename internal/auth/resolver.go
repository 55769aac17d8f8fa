package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/1-to-100/backoffice/internal/shared"
)

// Resolver maps a verified subject onto the users table.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve finds the user for claims. When the subject is not yet linked it
// falls back to an atomic email link, so a user provisioned before their
// first login gets attached on the spot. Concurrent first logins are safe:
// the losing request re-reads the row the winner linked.
func (r *Resolver) Resolve(ctx context.Context, claims Claims, opts ResolveOptions) (shared.Principal, error) {
	rec, err := r.repo.FindBySubject(ctx, claims.Subject)
	if errors.Is(err, shared.ErrNotFound) && claims.Email != "" {
		rec, err = r.repo.LinkSubjectByEmail(ctx, claims.Subject, claims.Email)
		if errors.Is(err, shared.ErrNotFound) {
			rec, err = r.repo.FindBySubject(ctx, claims.Subject)
			if errors.Is(err, shared.ErrNotFound) {
				return shared.Principal{}, r.classifyMiss(ctx, claims.Email)
			}
		}
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Principal{}, shared.ErrUserNotFound
		}
		return shared.Principal{}, fmt.Errorf("auth: resolve subject: %w", err)
	}
	return PrincipalFromRecord(rec, opts)
}

// classifyMiss distinguishes a deleted user from one that never existed.
// The email row is read only for the error kind; no link is written.
func (r *Resolver) classifyMiss(ctx context.Context, email string) error {
	rec, err := r.repo.FindByEmail(ctx, email)
	if err == nil && (rec.Status == shared.UserStatusDeleted || rec.DeletedAt != nil) {
		return shared.ErrUserDeleted
	}
	return shared.ErrUserNotFound
}

// PrincipalFromRecord applies status rules and builds the request principal.
// Deleted always fails. Invited passes only during invitation acceptance;
// every other non-active status is inactive.
func PrincipalFromRecord(rec *UserRecord, opts ResolveOptions) (shared.Principal, error) {
	switch {
	case rec.Status == shared.UserStatusDeleted || rec.DeletedAt != nil:
		return shared.Principal{}, shared.ErrUserDeleted
	case rec.Status == shared.UserStatusActive:
	case rec.Status == shared.UserStatusInvited && opts.AcceptingInvite:
	default:
		return shared.Principal{}, shared.ErrUserInactive
	}
	return shared.Principal{
		UserID:     rec.ID,
		CustomerID: rec.CustomerID,
		RoleID:     rec.RoleID,
		RoleName:   rec.RoleName,
		Email:      rec.Email,
		FullName:   rec.FullName,
		Status:     rec.Status,
	}, nil
}
