package auth

import (
	"github.com/google/uuid"
)

// Claims is the verified content of a bearer token. Tenant and impersonation
// values are hints persisted by a prior context change; the overlay
// re-validates them on every request before they carry any authority.
type Claims struct {
	Subject            string
	Email              string
	SessionID          string
	CustomerID         *uuid.UUID
	ImpersonatedUserID *uuid.UUID
}

// ResolveOptions tweaks principal resolution for special flows.
type ResolveOptions struct {
	// AcceptingInvite tolerates the invited status during invitation
	// acceptance. Deleted users fail resolution regardless.
	AcceptingInvite bool
}

// ClaimsUpdate is the context change written back through the credential
// issuer. Nil fields clear the corresponding claim.
type ClaimsUpdate struct {
	SessionID          string
	CustomerID         *uuid.UUID
	ImpersonatedUserID *uuid.UUID
}
