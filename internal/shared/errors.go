package shared

import "errors"

var (
	// ErrUnauthenticated indicates the request carried no usable credential:
	// missing or malformed bearer token, bad signature, expired, wrong issuer.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUserNotFound indicates a verified credential with no matching user row.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserDeleted indicates the matched user row is soft deleted.
	ErrUserDeleted = errors.New("user deleted")
	// ErrUserInactive indicates the matched user exists but may not sign in.
	ErrUserInactive = errors.New("user inactive")
	// ErrForbidden indicates an authenticated principal lacking authority
	// for the attempted operation, tenant, or impersonation target.
	ErrForbidden = errors.New("forbidden")
	// ErrUpstreamUnavailable indicates a dependency (credential issuer,
	// signing-key endpoint) could not be reached. Maps to 5xx, never 403.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates the request payload failed validation.
	ErrValidation = errors.New("validation failed")
)
