package roles

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/1-to-100/backoffice/internal/platform/httpx"
	"github.com/1-to-100/backoffice/internal/rbac"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Handler manages role administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbacMW,
		validator: validator.New(),
	}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermRolesView))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Patch("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Put("/{roleID}/permissions", h.replacePermissions)
	})
}

func roleIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid role id", shared.ErrValidation)
	}
	return id, nil
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=64,lowercase"`
	DisplayName string   `json:"displayName" validate:"required,max=128"`
	Description string   `json:"description" validate:"max=512"`
	Permissions []string `json:"permissions" validate:"omitempty,dive,required"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	rc := shared.RequestContextFrom(r.Context())
	role, err := h.service.Create(r.Context(), rc, CreateRoleInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

type updateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=64,lowercase"`
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=128"`
	Description *string `json:"description" validate:"omitempty,max=512"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	rc := shared.RequestContextFrom(r.Context())
	role, err := h.service.Update(r.Context(), rc, id, UpdateRoleInput{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Description: req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rc := shared.RequestContextFrom(r.Context())
	if err := h.service.Delete(r.Context(), rc, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type replacePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}

func (h *Handler) replacePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := roleIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req replacePermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	rc := shared.RequestContextFrom(r.Context())
	applied, err := h.service.ReplacePermissions(r.Context(), rc, id, req.Permissions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if applied == nil {
		applied = []string{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": applied})
}
