package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/1-to-100/backoffice/internal/platform/httpx"
	"github.com/1-to-100/backoffice/internal/shared"
)

// PermissionsHandler serves the permission catalog.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds a PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermRolesView))
		r.Get("/", h.listPermissions)
	})
	r.Get("/mine", h.myPermissions)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.Catalog(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// myPermissions answers with the caller's effective permission names, so
// clients can hide actions the backend would reject anyway.
func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())
	if rc == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	names, err := h.service.EffectivePermissions(r.Context(), rc.EffectiveRoleID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":        rc.EffectiveRoleName,
		"permissions": names,
	})
}
