package rbac

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/1-to-100/backoffice/internal/observability"
	"github.com/1-to-100/backoffice/internal/platform/httpx"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Middleware wires authorization gates for HTTP routes. It is the last
// guard stage: requests reaching it already carry a request context from
// the authenticator.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// RequireRoles passes requests whose effective role is one of roles.
func (m Middleware) RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return m.Require(Requirement{AnyRole: roles})
}

// RequirePermissions passes requests whose effective role grants at
// least one of perms.
func (m Middleware) RequirePermissions(perms ...string) func(http.Handler) http.Handler {
	return m.Require(Requirement{AnyPermission: perms})
}

// Require gates a route group on req.
func (m Middleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := shared.RequestContextFrom(r.Context())
			err := m.Service.Authorize(r.Context(), rc, req)
			if err == nil {
				m.record(observability.OutcomeOK)
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, r, rc, req, err)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, rc *shared.RequestContext, req Requirement, err error) {
	outcome := observability.OutcomeDenied
	if !errors.Is(err, shared.ErrForbidden) && !errors.Is(err, shared.ErrUnauthenticated) {
		outcome = observability.OutcomeError
	}
	m.record(outcome)

	attrs := []any{
		slog.String("stage", observability.StageAuthorize),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	}
	if rc != nil {
		attrs = append(attrs,
			slog.String("principal", rc.Principal.UserID.String()),
			slog.String("effective_role", rc.EffectiveRoleName),
		)
		if rc.Impersonating() {
			attrs = append(attrs, slog.String("acting_as", rc.Impersonation.UserID.String()))
		}
	}
	if len(req.AnyRole) > 0 {
		attrs = append(attrs, slog.String("required_roles", strings.Join(req.AnyRole, ",")))
	}
	if len(req.AnyPermission) > 0 {
		attrs = append(attrs, slog.String("required_permissions", strings.Join(req.AnyPermission, ",")))
	}
	if m.Logger != nil {
		m.Logger.Warn("request denied", attrs...)
	}

	httpx.RespondError(w, err)
}

func (m Middleware) record(outcome string) {
	if m.Metrics != nil {
		m.Metrics.RecordAuthDecision(observability.StageAuthorize, outcome)
	}
}

// Authorize exposes the evaluator for handlers that gate inside the
// handler body instead of at mount time.
func (m Middleware) Authorize(ctx context.Context, req Requirement) error {
	return m.Service.Authorize(ctx, shared.RequestContextFrom(ctx), req)
}
