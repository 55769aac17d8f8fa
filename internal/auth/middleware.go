package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/1-to-100/backoffice/internal/observability"
	"github.com/1-to-100/backoffice/internal/platform/httpx"
	"github.com/1-to-100/backoffice/internal/shared"
)

type claimsContextKey struct{}

// ContextWithClaims stores verified token claims in the request context.
func ContextWithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts verified claims, zero value when absent.
func ClaimsFromContext(ctx context.Context) Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(Claims)
	return claims
}

// Authenticator runs the first three guard stages: verify the credential,
// resolve the principal, apply the context overlay. Each request either
// reaches the handler with a complete RequestContext attached or is denied
// at the first failing stage.
type Authenticator struct {
	verifier *Verifier
	resolver *Resolver
	overlay  *Overlay
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewAuthenticator wires the guard chain stages together.
func NewAuthenticator(verifier *Verifier, resolver *Resolver, overlay *Overlay, logger *slog.Logger, metrics *observability.Metrics) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		verifier: verifier,
		resolver: resolver,
		overlay:  overlay,
		logger:   logger,
		metrics:  metrics,
	}
}

// Middleware guards a route group. Denials are terminal: no later stage and
// no handler runs after one.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.verifier.Verify(r.Context(), BearerToken(r))
		if err != nil {
			a.deny(w, r, observability.StageVerify, "", err)
			return
		}

		principal, err := a.resolver.Resolve(r.Context(), claims, ResolveOptions{})
		if err != nil {
			a.deny(w, r, observability.StageResolve, claims.Subject, err)
			return
		}

		rc, err := a.overlay.Apply(r.Context(), principal, claims.CustomerID, claims.ImpersonatedUserID)
		if err != nil {
			a.deny(w, r, observability.StageOverlay, principal.UserID.String(), err)
			return
		}

		a.metrics.RecordAuthDecision(observability.StageOverlay, observability.OutcomeOK)
		ctx := shared.ContextWithRequestContext(r.Context(), &rc)
		ctx = ContextWithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) deny(w http.ResponseWriter, r *http.Request, stage, principal string, err error) {
	outcome := observability.OutcomeDenied
	if errors.Is(err, shared.ErrUpstreamUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		outcome = observability.OutcomeError
	}
	a.metrics.RecordAuthDecision(stage, outcome)

	// The failure kind stays in logs; the response body is generic.
	attrs := []any{
		slog.String("stage", stage),
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	}
	if principal != "" {
		attrs = append(attrs, slog.String("principal", principal))
	}
	a.logger.Warn("request denied", attrs...)

	httpx.RespondError(w, err)
}

// BearerToken extracts the bearer credential from the Authorization header,
// empty string when missing or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
