package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1-to-100/backoffice/internal/shared"
)

type stubStore struct {
	mu        sync.Mutex
	inserted  []Event
	insertErr error

	rows        []TimelineRow
	lastFilters TimelineFilters
	lastOffset  int
	lastLimit   int
}

func (s *stubStore) Insert(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, event)
	return nil
}

func (s *stubStore) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilters = filters
	s.lastOffset = offset
	s.lastLimit = limit
	if offset >= len(s.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

var _ Store = (*stubStore)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	for i := range rows {
		rows[i] = TimelineRow{
			ID:       int64(i + 1),
			At:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
			Action:   "user.updated",
			Entity:   "user",
			EntityID: uuid.NewString(),
		}
	}
	return rows
}

func TestRecordRequiresActionEntityAndID(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store, discardLogger())

	err := svc.Record(context.Background(), Event{Action: "user.updated", Entity: "user"})
	require.Error(t, err)
	assert.Empty(t, store.inserted)

	err = svc.Record(context.Background(), Event{Action: "user.updated", Entity: "user", EntityID: "abc"})
	require.NoError(t, err)
	assert.Len(t, store.inserted, 1)
}

func TestRecordBestEffortSwallowsStoreErrors(t *testing.T) {
	store := &stubStore{insertErr: errors.New("connection refused")}
	svc := NewService(store, discardLogger())

	svc.RecordBestEffort(context.Background(), Event{Action: "user.updated", Entity: "user", EntityID: "abc"})
	assert.Empty(t, store.inserted)
}

func TestEventFromContextCapturesActorAndTarget(t *testing.T) {
	operator := uuid.New()
	target := uuid.New()
	tenant := uuid.New()
	rc := &shared.RequestContext{
		Principal: shared.Principal{
			UserID:   operator,
			RoleName: shared.RoleCustomerSuccess,
			Status:   shared.UserStatusActive,
		},
		EffectiveCustomerID: &tenant,
		EffectiveRoleName:   shared.RoleStandardUser,
		Impersonation: &shared.Impersonation{
			UserID:   target,
			RoleName: shared.RoleStandardUser,
		},
	}

	event := EventFromContext(rc, "team.created", "team", "t-1")
	require.NotNil(t, event.ActorUserID)
	assert.Equal(t, operator, *event.ActorUserID)
	require.NotNil(t, event.ActingAsUserID)
	assert.Equal(t, target, *event.ActingAsUserID)
	require.NotNil(t, event.CustomerID)
	assert.Equal(t, tenant, *event.CustomerID)
}

func TestEventFromContextWithoutContext(t *testing.T) {
	event := EventFromContext(nil, "user.invitation_accepted", "user", "u-1")
	assert.Nil(t, event.ActorUserID)
	assert.Nil(t, event.ActingAsUserID)
	assert.Equal(t, "user.invitation_accepted", event.Action)
}

func TestTimelinePaging(t *testing.T) {
	store := &stubStore{rows: makeRows(25)}
	svc := NewService(store, discardLogger())

	result, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 20)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.Equal(t, 21, store.lastLimit)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 5)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
	assert.Equal(t, 20, store.lastOffset)
}

func TestTimelinePageSizeClamped(t *testing.T) {
	store := &stubStore{rows: makeRows(60)}
	svc := NewService(store, discardLogger())

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 50)
	assert.Equal(t, 50, result.Paging.PageSize)
	assert.Equal(t, 51, store.lastLimit)
}
