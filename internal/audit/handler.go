package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/platform/httpx"
	"github.com/1-to-100/backoffice/internal/shared"
)

const (
	defaultTimelineRange = 7 * 24 * time.Hour
	maxTimelineRange     = 90 * 24 * time.Hour
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers audit routes. The timeline is reserved for system
// administrators; the check lives here because the audit package sits below
// the rbac middleware in the dependency order.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listTimeline)
}

func (h *Handler) listTimeline(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())
	if rc == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if rc.EffectiveRoleName != shared.RoleSystemAdmin {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}

	filters, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	now := h.now().UTC()
	q := r.URL.Query()

	to := now
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return TimelineFilters{}, shared.ErrValidation
		}
		to = parsed.Add(24 * time.Hour)
	}
	from := to.Add(-defaultTimelineRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return TimelineFilters{}, shared.ErrValidation
		}
		from = parsed
	}
	if from.After(to) || to.Sub(from) > maxTimelineRange {
		return TimelineFilters{}, shared.ErrValidation
	}

	filters := TimelineFilters{
		From:   from,
		To:     to,
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
	}

	if v := strings.TrimSpace(q.Get("actor_id")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return TimelineFilters{}, shared.ErrValidation
		}
		filters.ActorID = &id
	}
	if v := strings.TrimSpace(q.Get("customer_id")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return TimelineFilters{}, shared.ErrValidation
		}
		filters.CustomerID = &id
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page <= 0 {
			return TimelineFilters{}, shared.ErrValidation
		}
		filters.Page = page
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return TimelineFilters{}, shared.ErrValidation
		}
		filters.PageSize = size
	}
	return filters, nil
}
