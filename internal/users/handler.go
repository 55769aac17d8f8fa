package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/platform/httpx"
	"github.com/1-to-100/backoffice/internal/rbac"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Handler manages user administration endpoints.
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

// MountRoutes registers user routes. View, invite, edit and delete are
// separately grantable.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermUsersInvite))
		r.Post("/", h.inviteUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermUsersEdit))
		r.Patch("/{userID}", h.updateUser)
		r.Post("/{userID}/restore", h.restoreUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermUsersDelete))
		r.Delete("/{userID}", h.deleteUser)
	})
}

func userIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid user id", shared.ErrValidation)
	}
	return id, nil
}

type pagingInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listUsersResponse struct {
	Users  []User     `json:"users"`
	Paging pagingInfo `json:"paging"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())

	query := r.URL.Query()
	filters := ListFilters{
		Status: query.Get("status"),
		Search: query.Get("q"),
	}
	filters.Page, _ = strconv.Atoi(query.Get("page"))
	filters.PerPage, _ = strconv.Atoi(query.Get("perPage"))
	if raw := query.Get("roleId"); raw != "" {
		roleID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid roleId", shared.ErrValidation))
			return
		}
		filters.RoleID = roleID
	}
	switch filters.Status {
	case "", StatusActive, StatusInactive, StatusInvited, StatusDeleted:
	default:
		httpx.RespondError(w, fmt.Errorf("%w: invalid status filter", shared.ErrValidation))
		return
	}

	users, paging, err := h.service.List(r.Context(), rc, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, listUsersResponse{
		Users: users,
		Paging: pagingInfo{
			Page:       paging.Page,
			PerPage:    paging.PerPage,
			Total:      paging.Total,
			TotalPages: paging.TotalPages,
		},
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Get(r.Context(), shared.RequestContextFrom(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type inviteUserRequest struct {
	Email      string `json:"email" validate:"required,email"`
	FullName   string `json:"fullName" validate:"required,min=1,max=200"`
	RoleID     int64  `json:"roleId" validate:"required,gt=0"`
	CustomerID string `json:"customerId" validate:"omitempty,uuid"`
}

type inviteUserResponse struct {
	User User `json:"user"`
	// InviteToken is returned exactly once; only its hash is stored.
	InviteToken string `json:"inviteToken"`
}

func (h *Handler) inviteUser(w http.ResponseWriter, r *http.Request) {
	var req inviteUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	input := InviteUserInput{
		Email:    req.Email,
		FullName: req.FullName,
		RoleID:   req.RoleID,
	}
	if req.CustomerID != "" {
		id, _ := uuid.Parse(req.CustomerID)
		input.CustomerID = &id
	}

	rc := shared.RequestContextFrom(r.Context())
	user, token, err := h.service.Invite(r.Context(), rc, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inviteUserResponse{User: user, InviteToken: token})
}

type updateUserRequest struct {
	FullName *string `json:"fullName" validate:"omitempty,min=1,max=200"`
	RoleID   *int64  `json:"roleId" validate:"omitempty,gt=0"`
	Status   *string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	rc := shared.RequestContextFrom(r.Context())
	user, err := h.service.Update(r.Context(), rc, id, UpdateUserInput{
		FullName: req.FullName,
		RoleID:   req.RoleID,
		Status:   req.Status,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
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

func (h *Handler) restoreUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rc := shared.RequestContextFrom(r.Context())
	user, err := h.service.Restore(r.Context(), rc, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
