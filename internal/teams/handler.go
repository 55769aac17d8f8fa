package teams

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

// Handler manages team administration endpoints.
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

// MountRoutes registers team routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermTeamsView))
		r.Get("/", h.listTeams)
		r.Get("/{teamID}", h.getTeam)
		r.Get("/{teamID}/members", h.listMembers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermTeamsEdit))
		r.Post("/", h.createTeam)
		r.Patch("/{teamID}", h.updateTeam)
		r.Delete("/{teamID}", h.deleteTeam)
		r.Post("/{teamID}/members", h.addMember)
		r.Delete("/{teamID}/members/{userID}", h.removeMember)
	})
}

func teamIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "teamID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid team id", shared.ErrValidation)
	}
	return id, nil
}

type pagingInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listTeamsResponse struct {
	Teams  []Team     `json:"teams"`
	Paging pagingInfo `json:"paging"`
}

func (h *Handler) listTeams(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())
	query := r.URL.Query()
	filters := ListFilters{Search: query.Get("q")}
	filters.Page, _ = strconv.Atoi(query.Get("page"))
	filters.PerPage, _ = strconv.Atoi(query.Get("perPage"))

	teams, paging, err := h.service.List(r.Context(), rc, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if teams == nil {
		teams = []Team{}
	}
	httpx.JSON(w, http.StatusOK, listTeamsResponse{
		Teams: teams,
		Paging: pagingInfo{
			Page:       paging.Page,
			PerPage:    paging.PerPage,
			Total:      paging.Total,
			TotalPages: paging.TotalPages,
		},
	})
}

func (h *Handler) getTeam(w http.ResponseWriter, r *http.Request) {
	id, err := teamIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	team, err := h.service.Get(r.Context(), shared.RequestContextFrom(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, team)
}

type createTeamRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=200"`
	Description string  `json:"description" validate:"max=2000"`
	CustomerID  *string `json:"customerId" validate:"omitempty,uuid"`
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	input := CreateTeamInput{Name: req.Name, Description: req.Description}
	if req.CustomerID != nil {
		id, _ := uuid.Parse(*req.CustomerID)
		input.CustomerID = &id
	}

	rc := shared.RequestContextFrom(r.Context())
	team, err := h.service.Create(r.Context(), rc, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, team)
}

type updateTeamRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

func (h *Handler) updateTeam(w http.ResponseWriter, r *http.Request) {
	id, err := teamIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateTeamRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	rc := shared.RequestContextFrom(r.Context())
	team, err := h.service.Update(r.Context(), rc, id, UpdateTeamInput{Name: req.Name, Description: req.Description})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, team)
}

func (h *Handler) deleteTeam(w http.ResponseWriter, r *http.Request) {
	id, err := teamIDParam(r)
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

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	id, err := teamIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	members, err := h.service.Members(r.Context(), shared.RequestContextFrom(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if members == nil {
		members = []Member{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
}

type addMemberRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, err := teamIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req addMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	userID, _ := uuid.Parse(req.UserID)

	rc := shared.RequestContextFrom(r.Context())
	member, err := h.service.AddMember(r.Context(), rc, id, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, err := teamIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid user id", shared.ErrValidation))
		return
	}

	rc := shared.RequestContextFrom(r.Context())
	if err := h.service.RemoveMember(r.Context(), rc, id, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
