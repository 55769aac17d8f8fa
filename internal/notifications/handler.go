package notifications

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

// Handler manages notification endpoints.
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

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermNotificationsView))
		r.Get("/", h.list)
		r.Post("/{notificationID}/read", h.markRead)
		r.Post("/read-all", h.markAllRead)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermissions(shared.PermNotificationsManage))
		r.Post("/", h.create)
	})
}

type pagingInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type listNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	Paging        pagingInfo     `json:"paging"`
	UnreadCount   int64          `json:"unreadCount"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())
	query := r.URL.Query()
	filters := ListFilters{
		UnreadOnly: query.Get("unread") == "true",
		Kind:       query.Get("kind"),
	}
	filters.Page, _ = strconv.Atoi(query.Get("page"))
	filters.PerPage, _ = strconv.Atoi(query.Get("perPage"))

	notifications, paging, err := h.service.List(r.Context(), rc, filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	unread, err := h.service.Unread(r.Context(), rc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if notifications == nil {
		notifications = []Notification{}
	}
	httpx.JSON(w, http.StatusOK, listNotificationsResponse{
		Notifications: notifications,
		Paging: pagingInfo{
			Page:       paging.Page,
			PerPage:    paging.PerPage,
			Total:      paging.Total,
			TotalPages: paging.TotalPages,
		},
		UnreadCount: unread,
	})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid notification id", shared.ErrValidation))
		return
	}
	rc := shared.RequestContextFrom(r.Context())
	notification, err := h.service.MarkRead(r.Context(), rc, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, notification)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())
	updated, err := h.service.MarkAllRead(r.Context(), rc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": updated})
}

type createNotificationRequest struct {
	UserID     *string `json:"userId" validate:"omitempty,uuid"`
	CustomerID *string `json:"customerId" validate:"omitempty,uuid"`
	Kind       string  `json:"kind" validate:"required,max=100"`
	Title      string  `json:"title" validate:"required,max=200"`
	Body       string  `json:"body" validate:"max=4000"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	input := CreateInput{Kind: req.Kind, Title: req.Title, Body: req.Body}
	if req.UserID != nil {
		id, _ := uuid.Parse(*req.UserID)
		input.UserID = &id
	}
	if req.CustomerID != nil {
		id, _ := uuid.Parse(*req.CustomerID)
		input.CustomerID = &id
	}

	rc := shared.RequestContextFrom(r.Context())
	receipt, err := h.service.Create(r.Context(), rc, input, r.Header.Get("Idempotency-Key"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}
