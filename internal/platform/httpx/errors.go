// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"net/http"

	"github.com/1-to-100/backoffice/internal/shared"
)

// RespondError maps domain errors to RFC7807 responses. Authentication
// failures collapse to a generic 401 body; the distinct cause is for logs
// only. Timeouts and unreachable dependencies are 5xx, never 403.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated),
		errors.Is(err, shared.ErrUserNotFound),
		errors.Is(err, shared.ErrUserDeleted),
		errors.Is(err, shared.ErrUserInactive):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "permission denied")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrUpstreamUnavailable):
		Problem(w, http.StatusBadGateway, "Upstream Unavailable", "")
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
