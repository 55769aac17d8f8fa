package roles

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1-to-100/backoffice/internal/rbac"
	"github.com/1-to-100/backoffice/internal/shared"
)

// gateStore feeds the rbac gate with static role grants.
type gateStore struct {
	perms map[int64][]string
}

func (s gateStore) RolePermissionNames(ctx context.Context, roleID int64) ([]string, string, error) {
	names, ok := s.perms[roleID]
	if !ok {
		return nil, "", shared.ErrNotFound
	}
	return names, rbac.SourceJoin, nil
}

func (s gateStore) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return nil, nil
}

func (s gateStore) ListRoleIDs(ctx context.Context) ([]int64, error) {
	return nil, nil
}

const (
	editorRoleID = int64(1)
	viewerRoleID = int64(2)
	plainRoleID  = int64(3)
)

type handlerFixture struct {
	repo    *fakeRepo
	bumper  *stubInvalidator
	handler *Handler
}

func newHandlerFixture() *handlerFixture {
	repo := newFakeRepo()
	bumper := &stubInvalidator{}
	service := NewService(repo, bumper, &stubAuditor{})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := rbac.Middleware{
		Service: rbac.NewService(gateStore{perms: map[int64][]string{
			editorRoleID: {shared.PermRolesView, shared.PermRolesEdit},
			viewerRoleID: {shared.PermRolesView},
			plainRoleID:  {},
		}}, nil),
		Logger: logger,
	}
	return &handlerFixture{
		repo:    repo,
		bumper:  bumper,
		handler: NewHandler(logger, service, gate),
	}
}

func contextWithRole(roleID int64, roleName string) *shared.RequestContext {
	rc := adminContext()
	rc.Principal.RoleID = roleID
	rc.Principal.RoleName = roleName
	rc.EffectiveRoleID = roleID
	rc.EffectiveRoleName = roleName
	return rc
}

func (f *handlerFixture) serve(rc *shared.RequestContext, method, path, body string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rc != nil {
				r = r.WithContext(shared.ContextWithRequestContext(r.Context(), rc))
			}
			next.ServeHTTP(w, r)
		})
	})
	router.Route("/roles", f.handler.MountRoutes)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListRolesEndpoint(t *testing.T) {
	fx := newHandlerFixture()
	fx.repo.add(shared.RoleSystemAdmin, true, 1)
	fx.repo.add("support_agent", false, 4)

	rec := fx.serve(contextWithRole(viewerRoleID, "auditor"), http.MethodGet, "/roles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Roles []Role `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Roles, 2)
	assert.Equal(t, int64(4), payload.Roles[1].UsersCount)
}

func TestGetRoleEndpoint(t *testing.T) {
	fx := newHandlerFixture()
	seeded := fx.repo.add("support_agent", false, 0)

	rec := fx.serve(contextWithRole(viewerRoleID, "auditor"), http.MethodGet, "/roles/1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Equal(t, seeded.ID, role.ID)
	assert.Equal(t, "support_agent", role.Name)
}

func TestGetRoleEndpointNotFound(t *testing.T) {
	fx := newHandlerFixture()
	rec := fx.serve(contextWithRole(viewerRoleID, "auditor"), http.MethodGet, "/roles/404", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRoleEndpointBadID(t *testing.T) {
	fx := newHandlerFixture()
	rec := fx.serve(contextWithRole(viewerRoleID, "auditor"), http.MethodGet, "/roles/banana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRoleEndpoint(t *testing.T) {
	fx := newHandlerFixture()

	rec := fx.serve(contextWithRole(editorRoleID, shared.RoleSystemAdmin), http.MethodPost, "/roles",
		`{"name":"support_agent","displayName":"Support Agent","permissions":["`+shared.PermUsersView+`"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Equal(t, "support_agent", role.Name)
	assert.Equal(t, []string{shared.PermUsersView}, fx.repo.perms[role.ID])
}

func TestCreateRoleEndpointValidation(t *testing.T) {
	fx := newHandlerFixture()
	rc := contextWithRole(editorRoleID, shared.RoleSystemAdmin)

	for name, body := range map[string]string{
		"missing name":   `{"displayName":"Support"}`,
		"uppercase name": `{"name":"Support Agent","displayName":"Support"}`,
		"not json":       `banana`,
	} {
		rec := fx.serve(rc, http.MethodPost, "/roles", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	assert.Empty(t, fx.repo.roles)
}

func TestUpdateRoleEndpoint(t *testing.T) {
	fx := newHandlerFixture()
	fx.repo.add("support_agent", false, 0)

	rec := fx.serve(contextWithRole(editorRoleID, shared.RoleSystemAdmin), http.MethodPatch, "/roles/1",
		`{"displayName":"Front Desk"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Equal(t, "Front Desk", role.DisplayName)
	assert.Equal(t, "support_agent", role.Name)
}

func TestDeleteRoleEndpoint(t *testing.T) {
	fx := newHandlerFixture()
	fx.repo.add("support_agent", false, 0)

	rec := fx.serve(contextWithRole(editorRoleID, shared.RoleSystemAdmin), http.MethodDelete, "/roles/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, fx.repo.roles)
}

func TestSystemRoleMutationEndpointsForbidden(t *testing.T) {
	fx := newHandlerFixture()
	fx.repo.add(shared.RoleSystemAdmin, true, 1)
	rc := contextWithRole(editorRoleID, shared.RoleSystemAdmin)

	for name, attempt := range map[string]func() *httptest.ResponseRecorder{
		"rename": func() *httptest.ResponseRecorder {
			return fx.serve(rc, http.MethodPatch, "/roles/1", `{"displayName":"Root"}`)
		},
		"delete": func() *httptest.ResponseRecorder {
			return fx.serve(rc, http.MethodDelete, "/roles/1", "")
		},
		"permissions": func() *httptest.ResponseRecorder {
			return fx.serve(rc, http.MethodPut, "/roles/1/permissions", `{"permissions":[]}`)
		},
	} {
		rec := attempt()
		assert.Equal(t, http.StatusForbidden, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "permission denied", name)
	}
}

func TestReplacePermissionsEndpoint(t *testing.T) {
	fx := newHandlerFixture()
	fx.repo.add("support_agent", false, 0)

	rec := fx.serve(contextWithRole(editorRoleID, shared.RoleSystemAdmin), http.MethodPut, "/roles/1/permissions",
		`{"permissions":["`+shared.PermUsersView+`","`+shared.PermRolesView+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, []string{shared.PermRolesView, shared.PermUsersView}, payload.Permissions)
	assert.Equal(t, 1, fx.bumper.count())
}

func TestReplacePermissionsEndpointUnknownName(t *testing.T) {
	fx := newHandlerFixture()
	fx.repo.add("support_agent", false, 0)

	rec := fx.serve(contextWithRole(editorRoleID, shared.RoleSystemAdmin), http.MethodPut, "/roles/1/permissions",
		`{"permissions":["Bogus:perm"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRolesEndpointsRequirePermission(t *testing.T) {
	fx := newHandlerFixture()
	fx.repo.add("support_agent", false, 0)

	// No roles.view grant at all.
	rec := fx.serve(contextWithRole(plainRoleID, shared.RoleStandardUser), http.MethodGet, "/roles", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// View-only grant cannot mutate.
	rec = fx.serve(contextWithRole(viewerRoleID, "auditor"), http.MethodDelete, "/roles/1", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, fx.repo.roles, int64(1))
}

func TestRolesEndpointsRequireContext(t *testing.T) {
	fx := newHandlerFixture()
	rec := fx.serve(nil, http.MethodGet, "/roles", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
