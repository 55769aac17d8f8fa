package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1-to-100/backoffice/internal/shared"
)

var handlerNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

type handlerFixture struct {
	store   *stubStore
	handler *Handler
}

func newHandlerFixture() *handlerFixture {
	store := &stubStore{}
	handler := NewHandler(discardLogger(), NewService(store, discardLogger()))
	handler.now = func() time.Time { return handlerNow }
	return &handlerFixture{store: store, handler: handler}
}

func (f *handlerFixture) serve(rc *shared.RequestContext, path string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rc != nil {
				r = r.WithContext(shared.ContextWithRequestContext(r.Context(), rc))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Route("/audit", f.handler.MountRoutes)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func adminContext() *shared.RequestContext {
	return &shared.RequestContext{
		Principal: shared.Principal{
			UserID:   uuid.New(),
			RoleID:   1,
			RoleName: shared.RoleSystemAdmin,
			Status:   shared.UserStatusActive,
		},
		EffectiveRoleID:   1,
		EffectiveRoleName: shared.RoleSystemAdmin,
	}
}

func TestTimelineRequiresSystemAdmin(t *testing.T) {
	fx := newHandlerFixture()

	rec := fx.serve(nil, "/audit")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rc := adminContext()
	rc.EffectiveRoleID = 2
	rc.EffectiveRoleName = shared.RoleCustomerSuccess
	rec = fx.serve(rc, "/audit")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTimelineImpersonatedAdminDenied(t *testing.T) {
	fx := newHandlerFixture()

	// An admin acting as a member is judged by the acted-as role.
	rc := adminContext()
	target := uuid.New()
	rc.Impersonation = &shared.Impersonation{UserID: target, RoleName: shared.RoleStandardUser}
	rc.EffectiveRoleID = 4
	rc.EffectiveRoleName = shared.RoleStandardUser

	rec := fx.serve(rc, "/audit")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTimelineDefaultWindow(t *testing.T) {
	fx := newHandlerFixture()
	fx.store.rows = makeRows(3)

	rec := fx.serve(adminContext(), "/audit")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, handlerNow, fx.store.lastFilters.To)
	assert.Equal(t, handlerNow.Add(-7*24*time.Hour), fx.store.lastFilters.From)
	assert.Equal(t, 21, fx.store.lastLimit)

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Rows, 3)
	assert.False(t, result.Paging.HasNext)
}

func TestTimelineExplicitRange(t *testing.T) {
	fx := newHandlerFixture()

	rec := fx.serve(adminContext(), "/audit?from=2026-08-01&to=2026-08-10")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), fx.store.lastFilters.From)
	// The day named by to is included in full.
	assert.Equal(t, time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC), fx.store.lastFilters.To)
}

func TestTimelineRangeValidation(t *testing.T) {
	fx := newHandlerFixture()
	rc := adminContext()

	for name, query := range map[string]string{
		"from after to":  "?from=2026-08-10&to=2026-08-01",
		"window too big": "?from=2025-01-01&to=2026-08-01",
		"bad from":       "?from=yesterday",
		"bad actor":      "?actor_id=banana",
		"bad customer":   "?customer_id=banana",
		"bad page":       "?page=0",
		"bad page size":  "?page_size=-1",
	} {
		rec := fx.serve(rc, "/audit"+query)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestTimelineFilterPassthrough(t *testing.T) {
	fx := newHandlerFixture()
	actor := uuid.New()
	tenant := uuid.New()

	rec := fx.serve(adminContext(),
		"/audit?entity=user&action=user.updated&actor_id="+actor.String()+"&customer_id="+tenant.String()+"&page=2&page_size=10")
	require.Equal(t, http.StatusOK, rec.Code)

	filters := fx.store.lastFilters
	assert.Equal(t, "user", filters.Entity)
	assert.Equal(t, "user.updated", filters.Action)
	require.NotNil(t, filters.ActorID)
	assert.Equal(t, actor, *filters.ActorID)
	require.NotNil(t, filters.CustomerID)
	assert.Equal(t, tenant, *filters.CustomerID)
	assert.Equal(t, 10, fx.store.lastLimit-1)
	assert.Equal(t, 10, fx.store.lastOffset)
}
