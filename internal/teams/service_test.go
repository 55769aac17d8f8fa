package teams

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/shared"
)

const (
	adminRoleID  = int64(1)
	tenantRoleID = int64(3)
)

type fakeUser struct {
	customerID *uuid.UUID
	email      string
	fullName   string
	status     string
}

type fakeRepo struct {
	mu      sync.Mutex
	teams   map[uuid.UUID]Team
	members map[uuid.UUID]map[uuid.UUID]time.Time
	users   map[uuid.UUID]fakeUser
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		teams:   make(map[uuid.UUID]Team),
		members: make(map[uuid.UUID]map[uuid.UUID]time.Time),
		users:   make(map[uuid.UUID]fakeUser),
	}
}

func (f *fakeRepo) addTeam(name string, customerID uuid.UUID) Team {
	f.mu.Lock()
	defer f.mu.Unlock()
	team := Team{
		ID:         uuid.New(),
		CustomerID: customerID,
		Name:       name,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	f.teams[team.ID] = team
	f.members[team.ID] = make(map[uuid.UUID]time.Time)
	return team
}

func (f *fakeRepo) addUser(email string, customerID *uuid.UUID, status string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.users[id] = fakeUser{
		customerID: customerID,
		email:      email,
		fullName:   strings.SplitN(email, "@", 2)[0],
		status:     status,
	}
	return id
}

func (f *fakeRepo) withCount(team Team) Team {
	team.MembersCount = int64(len(f.members[team.ID]))
	return team
}

func (f *fakeRepo) ListTeams(ctx context.Context, filters ListFilters) ([]Team, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []Team
	for _, team := range f.teams {
		if !filters.Unscoped {
			if filters.CustomerID == nil || team.CustomerID != *filters.CustomerID {
				continue
			}
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(team.Name), strings.ToLower(filters.Search)) {
			continue
		}
		all = append(all, f.withCount(team))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)

	page := shared.NewPagination(filters.Page, filters.PerPage, total)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PerPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (f *fakeRepo) GetTeam(ctx context.Context, id uuid.UUID) (Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	team, ok := f.teams[id]
	if !ok {
		return Team{}, shared.ErrNotFound
	}
	return f.withCount(team), nil
}

func (f *fakeRepo) CreateTeam(ctx context.Context, customerID uuid.UUID, name, description string) (Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, team := range f.teams {
		if team.CustomerID == customerID && strings.EqualFold(team.Name, name) {
			return Team{}, fmt.Errorf("%w: team name already in use", shared.ErrConflict)
		}
	}
	team := Team{
		ID:          uuid.New(),
		CustomerID:  customerID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	f.teams[team.ID] = team
	f.members[team.ID] = make(map[uuid.UUID]time.Time)
	return team, nil
}

func (f *fakeRepo) UpdateTeam(ctx context.Context, id uuid.UUID, input UpdateTeamInput) (Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	team, ok := f.teams[id]
	if !ok {
		return Team{}, shared.ErrNotFound
	}
	if input.Name != nil {
		team.Name = *input.Name
	}
	if input.Description != nil {
		team.Description = *input.Description
	}
	team.UpdatedAt = time.Now()
	f.teams[id] = team
	return f.withCount(team), nil
}

func (f *fakeRepo) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.teams[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.teams, id)
	delete(f.members, id)
	return nil
}

func (f *fakeRepo) ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var members []Member
	for userID, addedAt := range f.members[teamID] {
		user := f.users[userID]
		members = append(members, Member{
			UserID:   userID,
			Email:    user.email,
			FullName: user.fullName,
			AddedAt:  addedAt,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Email < members[j].Email })
	return members, nil
}

func (f *fakeRepo) UserTenant(ctx context.Context, userID uuid.UUID) (*uuid.UUID, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return nil, "", shared.ErrNotFound
	}
	return user.customerID, user.status, nil
}

func (f *fakeRepo) AddMember(ctx context.Context, teamID, userID uuid.UUID) (Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	memberships, ok := f.members[teamID]
	if !ok {
		return Member{}, fmt.Errorf("%w: unknown team or user", shared.ErrValidation)
	}
	if _, exists := memberships[userID]; exists {
		return Member{}, fmt.Errorf("%w: user is already a member", shared.ErrConflict)
	}
	now := time.Now()
	memberships[userID] = now
	user := f.users[userID]
	return Member{UserID: userID, Email: user.email, FullName: user.fullName, AddedAt: now}, nil
}

func (f *fakeRepo) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	memberships, ok := f.members[teamID]
	if !ok {
		return shared.ErrNotFound
	}
	if _, exists := memberships[userID]; !exists {
		return shared.ErrNotFound
	}
	delete(memberships, userID)
	return nil
}

type stubAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *stubAuditor) Record(ctx context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubAuditor) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, event := range s.events {
		out[i] = event.Action
	}
	return out
}

func rcFor(roleID int64, roleName string, customerID *uuid.UUID) *shared.RequestContext {
	return &shared.RequestContext{
		Principal: shared.Principal{
			UserID:     uuid.New(),
			CustomerID: customerID,
			RoleID:     roleID,
			RoleName:   roleName,
			Email:      "caller@example.test",
			Status:     shared.UserStatusActive,
		},
		EffectiveCustomerID: customerID,
		EffectiveRoleID:     roleID,
		EffectiveRoleName:   roleName,
	}
}

type serviceFixture struct {
	repo    *fakeRepo
	auditor *stubAuditor
	service *Service
}

func newServiceFixture() *serviceFixture {
	repo := newFakeRepo()
	auditor := &stubAuditor{}
	return &serviceFixture{repo: repo, auditor: auditor, service: NewService(repo, auditor)}
}

func TestListScopedToTenant(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	tenantB := uuid.New()
	fx.repo.addTeam("Platform", tenantA)
	fx.repo.addTeam("Support", tenantA)
	fx.repo.addTeam("Other", tenantB)

	teams, paging, err := fx.service.List(context.Background(), rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA), ListFilters{})
	require.NoError(t, err)
	require.Len(t, teams, 2)
	for _, team := range teams {
		assert.Equal(t, tenantA, team.CustomerID)
	}
	assert.Equal(t, 2, paging.Total)
}

func TestListUnscopedForSystemAdmin(t *testing.T) {
	fx := newServiceFixture()
	fx.repo.addTeam("Platform", uuid.New())
	fx.repo.addTeam("Other", uuid.New())

	teams, _, err := fx.service.List(context.Background(), rcFor(adminRoleID, shared.RoleSystemAdmin, nil), ListFilters{})
	require.NoError(t, err)
	assert.Len(t, teams, 2)
}

func TestGetMasksForeignTenant(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	tenantB := uuid.New()
	foreign := fx.repo.addTeam("Other", tenantB)

	_, err := fx.service.Get(context.Background(), rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA), foreign.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.NotErrorIs(t, err, shared.ErrForbidden)
}

func TestCreateTeam(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	rc := rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA)

	team, err := fx.service.Create(context.Background(), rc, CreateTeamInput{Name: "  Field   Ops ", Description: "on-site crew"})
	require.NoError(t, err)
	assert.Equal(t, "Field Ops", team.Name)
	assert.Equal(t, tenantA, team.CustomerID)
	assert.Equal(t, []string{"team.created"}, fx.auditor.actions())
}

func TestCreateTeamForeignTenantForbidden(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	tenantB := uuid.New()

	_, err := fx.service.Create(context.Background(), rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA), CreateTeamInput{
		Name:       "Sneaky",
		CustomerID: &tenantB,
	})
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, fx.repo.teams)
}

func TestCreateTeamSystemAdminAnyTenant(t *testing.T) {
	fx := newServiceFixture()
	tenantB := uuid.New()

	team, err := fx.service.Create(context.Background(), rcFor(adminRoleID, shared.RoleSystemAdmin, nil), CreateTeamInput{
		Name:       "Managed",
		CustomerID: &tenantB,
	})
	require.NoError(t, err)
	assert.Equal(t, tenantB, team.CustomerID)
}

func TestCreateTeamWithoutTenant(t *testing.T) {
	fx := newServiceFixture()

	_, err := fx.service.Create(context.Background(), rcFor(adminRoleID, shared.RoleSystemAdmin, nil), CreateTeamInput{Name: "Orphan"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateTeamDuplicateName(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	fx.repo.addTeam("Platform", tenantA)

	_, err := fx.service.Create(context.Background(), rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA), CreateTeamInput{Name: "Platform"})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestUpdateTeam(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	team := fx.repo.addTeam("Platform", tenantA)
	rc := rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA)

	name := " Platform  Engineering "
	updated, err := fx.service.Update(context.Background(), rc, team.ID, UpdateTeamInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Platform Engineering", updated.Name)
	assert.Equal(t, []string{"team.updated"}, fx.auditor.actions())
}

func TestUpdateTeamMasksForeignTenant(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	tenantB := uuid.New()
	foreign := fx.repo.addTeam("Other", tenantB)
	name := "Hijacked"

	_, err := fx.service.Update(context.Background(), rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA), foreign.ID, UpdateTeamInput{Name: &name})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, "Other", fx.repo.teams[foreign.ID].Name)
}

func TestDeleteTeam(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	team := fx.repo.addTeam("Platform", tenantA)
	rc := rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA)

	require.NoError(t, fx.service.Delete(context.Background(), rc, team.ID))
	assert.Empty(t, fx.repo.teams)
	assert.Equal(t, []string{"team.deleted"}, fx.auditor.actions())
}

func TestAddMember(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	team := fx.repo.addTeam("Platform", tenantA)
	userID := fx.repo.addUser("member@example.test", &tenantA, shared.UserStatusActive)
	rc := rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA)

	member, err := fx.service.AddMember(context.Background(), rc, team.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, "member@example.test", member.Email)
	assert.Equal(t, []string{"team.member_added"}, fx.auditor.actions())

	members, err := fx.service.Members(context.Background(), rc, team.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestAddMemberCrossTenantRejected(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	tenantB := uuid.New()
	team := fx.repo.addTeam("Platform", tenantA)
	outsider := fx.repo.addUser("outsider@example.test", &tenantB, shared.UserStatusActive)
	rc := rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA)

	_, err := fx.service.AddMember(context.Background(), rc, team.ID, outsider)
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Empty(t, fx.repo.members[team.ID])
}

func TestAddMemberDeletedUserRejected(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	team := fx.repo.addTeam("Platform", tenantA)
	gone := fx.repo.addUser("gone@example.test", &tenantA, shared.UserStatusDeleted)

	_, err := fx.service.AddMember(context.Background(), rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA), team.ID, gone)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestAddMemberTwiceConflict(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	team := fx.repo.addTeam("Platform", tenantA)
	userID := fx.repo.addUser("member@example.test", &tenantA, shared.UserStatusActive)
	rc := rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA)

	_, err := fx.service.AddMember(context.Background(), rc, team.ID, userID)
	require.NoError(t, err)
	_, err = fx.service.AddMember(context.Background(), rc, team.ID, userID)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestRemoveMember(t *testing.T) {
	fx := newServiceFixture()
	tenantA := uuid.New()
	team := fx.repo.addTeam("Platform", tenantA)
	userID := fx.repo.addUser("member@example.test", &tenantA, shared.UserStatusActive)
	rc := rcFor(tenantRoleID, shared.RoleCustomerAdmin, &tenantA)

	_, err := fx.service.AddMember(context.Background(), rc, team.ID, userID)
	require.NoError(t, err)
	require.NoError(t, fx.service.RemoveMember(context.Background(), rc, team.ID, userID))
	assert.Empty(t, fx.repo.members[team.ID])

	err = fx.service.RemoveMember(context.Background(), rc, team.ID, userID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
