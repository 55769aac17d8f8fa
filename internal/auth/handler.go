package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/1-to-100/backoffice/internal/platform/httpx"
	"github.com/1-to-100/backoffice/internal/shared"
)

// Handler wires HTTP endpoints for identity and context flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	verifier  *Verifier
	resolver  *Resolver
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, verifier *Verifier, resolver *Resolver) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		verifier:  verifier,
		resolver:  resolver,
		validator: validator.New(),
	}
}

// MountRoutes registers authenticated auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me", h.me)
	r.Post("/context", h.changeContext)
	r.Delete("/context", h.clearContext)
}

// MountPublicRoutes registers routes reachable without a bearer token.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Post("/accept", h.acceptInvitation)
}

type userInfo struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	FullName   string     `json:"fullName"`
	Role       string     `json:"role"`
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
	Status     string     `json:"status"`
}

type impersonatedInfo struct {
	ID         uuid.UUID  `json:"id"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
}

type contextInfo struct {
	EffectiveCustomerID  *uuid.UUID        `json:"effectiveCustomerId,omitempty"`
	EffectiveRole        string            `json:"effectiveRole"`
	Impersonating        bool              `json:"impersonating"`
	ImpersonatedUser     *impersonatedInfo `json:"impersonatedUser,omitempty"`
	TokenRefreshRequired bool              `json:"tokenRefreshRequired,omitempty"`
}

type meResponse struct {
	User    userInfo    `json:"user"`
	Context contextInfo `json:"context"`
}

func contextInfoFrom(rc shared.RequestContext) contextInfo {
	info := contextInfo{
		EffectiveCustomerID: rc.EffectiveCustomerID,
		EffectiveRole:       rc.EffectiveRoleName,
		Impersonating:       rc.Impersonating(),
	}
	if rc.Impersonation != nil {
		info.ImpersonatedUser = &impersonatedInfo{
			ID:         rc.Impersonation.UserID,
			Email:      rc.Impersonation.Email,
			Role:       rc.Impersonation.RoleName,
			CustomerID: rc.Impersonation.CustomerID,
		}
	}
	return info
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())
	if rc == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, meResponse{
		User: userInfo{
			ID:         rc.Principal.UserID,
			Email:      rc.Principal.Email,
			FullName:   rc.Principal.FullName,
			Role:       rc.Principal.RoleName,
			CustomerID: rc.Principal.CustomerID,
			Status:     rc.Principal.Status,
		},
		Context: contextInfoFrom(*rc),
	})
}

type contextChangeRequest struct {
	CustomerID         string `json:"customerId" validate:"omitempty,uuid"`
	ImpersonatedUserID string `json:"impersonatedUserId" validate:"omitempty,uuid"`
}

func (h *Handler) changeContext(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())
	if rc == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}

	var req contextChangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	change := ContextChange{}
	if req.CustomerID != "" {
		id, _ := uuid.Parse(req.CustomerID)
		change.CustomerID = &id
	}
	if req.ImpersonatedUserID != "" {
		id, _ := uuid.Parse(req.ImpersonatedUserID)
		change.ImpersonatedUserID = &id
	}

	claims := ClaimsFromContext(r.Context())
	next, err := h.service.ChangeContext(r.Context(), rc, claims.SessionID, change)
	if err != nil {
		h.logger.Warn("context change rejected",
			slog.String("principal", rc.Principal.UserID.String()),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	info := contextInfoFrom(next)
	info.TokenRefreshRequired = true
	httpx.JSON(w, http.StatusOK, info)
}

func (h *Handler) clearContext(w http.ResponseWriter, r *http.Request) {
	rc := shared.RequestContextFrom(r.Context())
	if rc == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if err := h.service.ClearContext(r.Context(), rc, claims.SessionID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

type acceptInvitationRequest struct {
	Email string `json:"email" validate:"required,email"`
	Token string `json:"token" validate:"required,min=16"`
}

func (h *Handler) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}

	// Acceptance works without a credential, but when the caller already
	// holds one it must belong to the invited account. Resolution tolerates
	// the invited status only on this path.
	if raw := BearerToken(r); raw != "" {
		claims, err := h.verifier.Verify(r.Context(), raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		principal, err := h.resolver.Resolve(r.Context(), claims, ResolveOptions{AcceptingInvite: true})
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if !strings.EqualFold(principal.Email, req.Email) {
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
	}

	if err := h.service.AcceptInvitation(r.Context(), req.Email, req.Token); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}
