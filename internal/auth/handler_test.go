package auth

import (
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1-to-100/backoffice/internal/shared"
)

type handlerFixture struct {
	repo    *fakeRepo
	issuer  *stubIssuer
	auditor *stubAuditor
	key     *rsa.PrivateKey
	handler *Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	repo := newFakeRepo()
	issuer := &stubIssuer{}
	auditor := &stubAuditor{}
	service := NewService(repo, NewOverlay(repo), issuer, auditor, 7*24*time.Hour)

	key := generateTestKey(t)
	source := &staticKeys{keys: map[string]*rsa.PublicKey{"kid-1": &key.PublicKey}}
	verifier := NewVerifier(source, testIssuer, testAudience)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, service, verifier, NewResolver(repo))

	return &handlerFixture{repo: repo, issuer: issuer, auditor: auditor, key: key, handler: handler}
}

// serveAuthed dispatches req through the authenticated route group with a
// pre-built request context, standing in for the guard middleware.
func (fx *handlerFixture) serveAuthed(req *http.Request, rc *shared.RequestContext, claims Claims) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := shared.ContextWithRequestContext(r.Context(), rc)
				ctx = ContextWithClaims(ctx, claims)
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
		r.Route("/auth", fx.handler.MountRoutes)
	})
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func (fx *handlerFixture) servePublic(req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Route("/auth/invitations", fx.handler.MountPublicRoutes)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	return res
}

func TestMeEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)
	tenant := uuid.New()
	admin := fx.repo.add(activeUser(shared.RoleSystemAdmin, nil))
	target := fx.repo.add(activeUser(shared.RoleStandardUser, &tenant))

	rc := requestContextFor(admin)
	rc.Impersonation = &shared.Impersonation{
		UserID:     target.ID,
		Email:      target.Email,
		RoleID:     target.RoleID,
		RoleName:   target.RoleName,
		CustomerID: target.CustomerID,
	}
	rc.EffectiveRoleName = target.RoleName
	rc.EffectiveRoleID = target.RoleID
	rc.EffectiveCustomerID = target.CustomerID

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	res := fx.serveAuthed(req, rc, Claims{SessionID: "sess-1"})
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		User struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
		Context struct {
			EffectiveCustomerID string `json:"effectiveCustomerId"`
			EffectiveRole       string `json:"effectiveRole"`
			Impersonating       bool   `json:"impersonating"`
			ImpersonatedUser    *struct {
				ID string `json:"id"`
			} `json:"impersonatedUser"`
		} `json:"context"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, admin.ID.String(), body.User.ID)
	assert.Equal(t, shared.RoleSystemAdmin, body.User.Role)
	assert.Equal(t, tenant.String(), body.Context.EffectiveCustomerID)
	assert.Equal(t, shared.RoleStandardUser, body.Context.EffectiveRole)
	assert.True(t, body.Context.Impersonating)
	require.NotNil(t, body.Context.ImpersonatedUser)
	assert.Equal(t, target.ID.String(), body.Context.ImpersonatedUser.ID)
}

func TestChangeContextEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)
	tenant := uuid.New()
	fx.repo.customers[tenant] = true
	admin := fx.repo.add(activeUser(shared.RoleSystemAdmin, nil))

	req := httptest.NewRequest(http.MethodPost, "/auth/context", strings.NewReader(`{"customerId":"`+tenant.String()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	res := fx.serveAuthed(req, requestContextFor(admin), Claims{SessionID: "sess-1"})

	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Contains(t, res.Body.String(), `"tokenRefreshRequired":true`)
	require.Len(t, fx.issuer.updates, 1)
	assert.Equal(t, "sess-1", fx.issuer.updates[0].SessionID)
}

func TestChangeContextEndpointInvalidBody(t *testing.T) {
	fx := newHandlerFixture(t)
	admin := fx.repo.add(activeUser(shared.RoleSystemAdmin, nil))

	req := httptest.NewRequest(http.MethodPost, "/auth/context", strings.NewReader(`{"customerId":"banana"}`))
	req.Header.Set("Content-Type", "application/json")
	res := fx.serveAuthed(req, requestContextFor(admin), Claims{SessionID: "sess-1"})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Empty(t, fx.issuer.updates)
}

func TestChangeContextEndpointWithoutSession(t *testing.T) {
	fx := newHandlerFixture(t)
	tenant := uuid.New()
	fx.repo.customers[tenant] = true
	admin := fx.repo.add(activeUser(shared.RoleSystemAdmin, nil))

	req := httptest.NewRequest(http.MethodPost, "/auth/context", strings.NewReader(`{"customerId":"`+tenant.String()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	res := fx.serveAuthed(req, requestContextFor(admin), Claims{})

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Empty(t, fx.issuer.updates)
}

func TestChangeContextEndpointForbidden(t *testing.T) {
	fx := newHandlerFixture(t)
	ownTenant := uuid.New()
	otherTenant := uuid.New()
	fx.repo.customers[otherTenant] = true
	member := fx.repo.add(activeUser(shared.RoleStandardUser, &ownTenant))

	req := httptest.NewRequest(http.MethodPost, "/auth/context", strings.NewReader(`{"customerId":"`+otherTenant.String()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	res := fx.serveAuthed(req, requestContextFor(member), Claims{SessionID: "sess-1"})

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Empty(t, fx.issuer.updates)
}

func TestClearContextEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)
	admin := fx.repo.add(activeUser(shared.RoleSystemAdmin, nil))

	req := httptest.NewRequest(http.MethodDelete, "/auth/context", nil)
	res := fx.serveAuthed(req, requestContextFor(admin), Claims{SessionID: "sess-7"})

	assert.Equal(t, http.StatusNoContent, res.Code)
	require.Len(t, fx.issuer.updates, 1)
	assert.Equal(t, "sess-7", fx.issuer.updates[0].SessionID)
	assert.Nil(t, fx.issuer.updates[0].CustomerID)
	assert.Nil(t, fx.issuer.updates[0].ImpersonatedUserID)
}

func TestAcceptInvitationEndpoint(t *testing.T) {
	fx := newHandlerFixture(t)
	rec := invitedUser(t, fx.repo, "secret-invite-token-123", time.Now().Add(-time.Hour))

	body := `{"email":"` + rec.Email + `","token":"secret-invite-token-123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/invitations/accept", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := fx.servePublic(req)

	assert.Equal(t, http.StatusNoContent, res.Code, res.Body.String())
	assert.Equal(t, shared.UserStatusActive, rec.Status)
}

func TestAcceptInvitationEndpointWrongToken(t *testing.T) {
	fx := newHandlerFixture(t)
	rec := invitedUser(t, fx.repo, "secret-invite-token-123", time.Now().Add(-time.Hour))

	body := `{"email":"` + rec.Email + `","token":"guessed-token-guessed"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/invitations/accept", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := fx.servePublic(req)

	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body.String(), "authentication required")
	assert.Equal(t, shared.UserStatusInvited, rec.Status)
}

func TestAcceptInvitationEndpointValidation(t *testing.T) {
	fx := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/invitations/accept", strings.NewReader(`{"email":"not-an-email","token":""}`))
	req.Header.Set("Content-Type", "application/json")
	res := fx.servePublic(req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestAcceptInvitationBearerMustMatchInvite(t *testing.T) {
	fx := newHandlerFixture(t)
	invited := invitedUser(t, fx.repo, "secret-invite-token-123", time.Now().Add(-time.Hour))
	other := fx.repo.add(activeUser(shared.RoleStandardUser, nil))

	body := `{"email":"` + invited.Email + `","token":"secret-invite-token-123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/invitations/accept", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, fx.key, "kid-1", tokenOverrides{
		subject: *other.SubjectID,
		email:   other.Email,
	}))
	res := fx.servePublic(req)

	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, shared.UserStatusInvited, invited.Status)
}

func TestAcceptInvitationBearerForInvitedUser(t *testing.T) {
	fx := newHandlerFixture(t)
	invited := invitedUser(t, fx.repo, "secret-invite-token-123", time.Now().Add(-time.Hour))
	subject := "auth0|invited"
	invited.SubjectID = &subject
	fx.repo.bySubject[subject] = invited

	body := `{"email":"` + invited.Email + `","token":"secret-invite-token-123"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/invitations/accept", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, fx.key, "kid-1", tokenOverrides{
		subject: subject,
		email:   invited.Email,
	}))
	res := fx.servePublic(req)

	assert.Equal(t, http.StatusNoContent, res.Code, res.Body.String())
	assert.Equal(t, shared.UserStatusActive, invited.Status)
}
