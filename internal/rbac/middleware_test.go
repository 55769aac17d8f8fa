package rbac

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1-to-100/backoffice/internal/observability"
	"github.com/1-to-100/backoffice/internal/shared"
)

func newTestMiddleware(store Store) Middleware {
	return Middleware{
		Service: NewService(store, NewCache(nil, 0)),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: observability.NewMetrics(),
	}
}

func serveGated(mw Middleware, req Requirement, rc *shared.RequestContext) (*httptest.ResponseRecorder, bool) {
	reached := false
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(mw.Require(req))
		r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
			reached = true
			w.WriteHeader(http.StatusOK)
		})
	})

	httpReq := httptest.NewRequest(http.MethodGet, "/users", nil)
	if rc != nil {
		httpReq = httpReq.WithContext(shared.ContextWithRequestContext(httpReq.Context(), rc))
	}
	res := httptest.NewRecorder()
	r.ServeHTTP(res, httpReq)
	return res, reached
}

func TestRequirePermissionsAllows(t *testing.T) {
	store := &fakeStore{perms: map[int64][]string{3: {shared.PermUsersView}}}
	mw := newTestMiddleware(store)
	rc := testContext(3, shared.RoleCustomerAdmin)

	res, reached := serveGated(mw, Requirement{AnyPermission: []string{shared.PermUsersView}}, rc)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.True(t, reached)
}

func TestRequirePermissionsDenies(t *testing.T) {
	store := &fakeStore{perms: map[int64][]string{4: {shared.PermUsersView}}}
	mw := newTestMiddleware(store)
	rc := testContext(4, shared.RoleStandardUser)

	res, reached := serveGated(mw, Requirement{AnyPermission: []string{shared.PermRolesEdit}}, rc)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.False(t, reached)
	assert.Contains(t, res.Body.String(), "permission denied")
}

func TestRequireRolesDenies(t *testing.T) {
	mw := newTestMiddleware(&fakeStore{})
	rc := testContext(4, shared.RoleStandardUser)

	res, reached := serveGated(mw, Requirement{AnyRole: []string{shared.RoleSystemAdmin}}, rc)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.False(t, reached)
}

func TestRequireWithoutContextIs401(t *testing.T) {
	mw := newTestMiddleware(&fakeStore{})

	res, reached := serveGated(mw, Requirement{AnyRole: []string{shared.RoleSystemAdmin}}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.False(t, reached)
}

func TestRequireStoreOutageIsNot403(t *testing.T) {
	store := &fakeStore{err: shared.ErrUpstreamUnavailable}
	mw := newTestMiddleware(store)
	rc := testContext(3, shared.RoleCustomerAdmin)

	res, reached := serveGated(mw, Requirement{AnyPermission: []string{shared.PermUsersView}}, rc)
	assert.Equal(t, http.StatusBadGateway, res.Code)
	assert.False(t, reached)
}

func TestRequireRecordsAuthorizeMetrics(t *testing.T) {
	store := &fakeStore{perms: map[int64][]string{4: {}}}
	mw := newTestMiddleware(store)
	rc := testContext(4, shared.RoleStandardUser)

	_, _ = serveGated(mw, Requirement{AnyPermission: []string{shared.PermRolesEdit}}, rc)
	_, _ = serveGated(mw, Requirement{AnyPermission: []string{shared.PermRolesEdit}}, rc)

	metricsReq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	metricsRes := httptest.NewRecorder()
	mw.Metrics.Handler().ServeHTTP(metricsRes, metricsReq)

	body := metricsRes.Body.String()
	require.Contains(t, body, `backoffice_auth_decisions_total{outcome="denied",stage="authorize"} 2`)
}

func TestPermissionsHandlerCatalog(t *testing.T) {
	store := &fakeStore{
		perms: map[int64][]string{1: {shared.PermRolesView}},
		catalog: []Permission{
			{ID: 1, Name: shared.PermUsersView, Description: "List and read users"},
			{ID: 2, Name: shared.PermUsersEdit},
		},
	}
	mw := newTestMiddleware(store)
	handler := NewPermissionsHandler(mw.Logger, mw.Service, mw)

	r := chi.NewRouter()
	r.Route("/permissions", handler.MountRoutes)

	rc := testContext(1, shared.RoleSystemAdmin)
	req := httptest.NewRequest(http.MethodGet, "/permissions", nil)
	req = req.WithContext(shared.ContextWithRequestContext(req.Context(), rc))
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), shared.PermUsersView)

	// A role without RoleManagement:viewRoles cannot read the catalog.
	denied := testContext(4, shared.RoleStandardUser)
	store.perms[4] = []string{}
	req = httptest.NewRequest(http.MethodGet, "/permissions", nil)
	req = req.WithContext(shared.ContextWithRequestContext(req.Context(), denied))
	res = httptest.NewRecorder()
	r.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestPermissionsHandlerMine(t *testing.T) {
	store := &fakeStore{perms: map[int64][]string{4: {shared.PermUsersView, shared.PermTeamsView}}}
	mw := newTestMiddleware(store)
	handler := NewPermissionsHandler(mw.Logger, mw.Service, mw)

	r := chi.NewRouter()
	r.Route("/permissions", handler.MountRoutes)

	rc := testContext(4, shared.RoleStandardUser)
	req := httptest.NewRequest(http.MethodGet, "/permissions/mine", nil)
	req = req.WithContext(shared.ContextWithRequestContext(req.Context(), rc))
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), shared.RoleStandardUser)
	assert.Contains(t, res.Body.String(), shared.PermTeamsView)
}
