package customers

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

// Handler manages tenant administration endpoints. This is a back-office
// surface: the role gate and the permission gate must both pass.
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

// MountRoutes registers customer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Requirement{
			AnyRole:       []string{shared.RoleSystemAdmin, shared.RoleCustomerSuccess},
			AnyPermission: []string{shared.PermCustomersView},
		}))
		r.Get("/", h.listCustomers)
		r.Get("/{customerID}", h.getCustomer)
		r.Get("/{customerID}/grants", h.listGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Requirement{
			AnyRole:       []string{shared.RoleSystemAdmin},
			AnyPermission: []string{shared.PermCustomersEdit},
		}))
		r.Post("/", h.createCustomer)
		r.Patch("/{customerID}", h.updateCustomer)
		r.Delete("/{customerID}", h.deleteCustomer)
		r.Post("/{customerID}/grants", h.addGrant)
		r.Delete("/{customerID}/grants/{userID}", h.removeGrant)
	})
}

func customerIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "customerID"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid customer id", shared.ErrValidation)
	}
	return id, nil
}

type pagingInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listCustomersResponse struct {
	Customers []Customer `json:"customers"`
	Paging    pagingInfo `json:"paging"`
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := ListFilters{
		Status: query.Get("status"),
		Search: query.Get("q"),
	}
	filters.Page, _ = strconv.Atoi(query.Get("page"))
	filters.PerPage, _ = strconv.Atoi(query.Get("perPage"))
	switch filters.Status {
	case "", StatusActive, StatusSuspended:
	default:
		httpx.RespondError(w, fmt.Errorf("%w: invalid status filter", shared.ErrValidation))
		return
	}

	customers, paging, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if customers == nil {
		customers = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, listCustomersResponse{
		Customers: customers,
		Paging: pagingInfo{
			Page:       paging.Page,
			PerPage:    paging.PerPage,
			Total:      paging.Total,
			TotalPages: paging.TotalPages,
		},
	})
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

type createCustomerRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	rc := shared.RequestContextFrom(r.Context())
	customer, err := h.service.Create(r.Context(), rc, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

type updateCustomerRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=1,max=200"`
	Status *string `json:"status" validate:"omitempty,oneof=active suspended"`
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req updateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	rc := shared.RequestContextFrom(r.Context())
	customer, err := h.service.Update(r.Context(), rc, id, UpdateCustomerInput{Name: req.Name, Status: req.Status})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDParam(r)
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

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grants, err := h.service.Grants(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if grants == nil {
		grants = []Grant{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": grants})
}

type addGrantRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
}

func (h *Handler) addGrant(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req addGrantRequest
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
	grant, err := h.service.AddGrant(r.Context(), rc, id, userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grant)
}

func (h *Handler) removeGrant(w http.ResponseWriter, r *http.Request) {
	id, err := customerIDParam(r)
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
	if err := h.service.RemoveGrant(r.Context(), rc, id, userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
