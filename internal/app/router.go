package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/auth"
	"github.com/1-to-100/backoffice/internal/customers"
	"github.com/1-to-100/backoffice/internal/notifications"
	"github.com/1-to-100/backoffice/internal/observability"
	"github.com/1-to-100/backoffice/internal/rbac"
	"github.com/1-to-100/backoffice/internal/roles"
	"github.com/1-to-100/backoffice/internal/teams"
	"github.com/1-to-100/backoffice/internal/users"
	"github.com/1-to-100/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Authenticator *auth.Authenticator

	AuthHandler          *auth.Handler
	UsersHandler         *users.Handler
	RolesHandler         *roles.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	CustomersHandler     *customers.Handler
	TeamsHandler         *teams.Handler
	NotificationsHandler *notifications.Handler
	AuditHandler         *audithttp.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router. Everything below the authenticated
// group runs behind verify/resolve/overlay; permission gates are applied
// per route inside each handler's MountRoutes.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		r.Route("/auth/invitations", params.AuthHandler.MountPublicRoutes)
	}

	r.Group(func(r chi.Router) {
		if params.Authenticator != nil {
			r.Use(params.Authenticator.Middleware)
		}
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", params.UsersHandler.MountRoutes)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", params.RolesHandler.MountRoutes)
		}
		if params.PermissionsHandler != nil {
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		}
		if params.CustomersHandler != nil {
			r.Route("/customers", params.CustomersHandler.MountRoutes)
		}
		if params.TeamsHandler != nil {
			r.Route("/teams", params.TeamsHandler.MountRoutes)
		}
		if params.NotificationsHandler != nil {
			r.Route("/notifications", params.NotificationsHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
