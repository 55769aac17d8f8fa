package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/1-to-100/backoffice/internal/jobs"
	"github.com/1-to-100/backoffice/internal/users"
)

// InvitationExpiryJob deactivates accounts whose invitation was never accepted
// within the TTL and clears the stale token hash.
type InvitationExpiryJob struct {
	Users   *users.Service
	TTL     time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewInvitationExpiryJob wires dependencies for the expiry sweep.
func NewInvitationExpiryJob(usersSvc *users.Service, ttl time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *InvitationExpiryJob {
	return &InvitationExpiryJob{
		Users:   usersSvc,
		TTL:     ttl,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes invitation expiry tasks.
func (j *InvitationExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Users == nil {
		return errors.New("invitations expire: handler not configured")
	}
	var payload InvitationsExpirePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	ttl := j.TTL
	if payload.TTLHours > 0 {
		ttl = time.Duration(payload.TTLHours) * time.Hour
	}
	if ttl <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskInvitationsExpire)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-ttl)
	expired, err := j.Users.ExpireInvitations(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.logger().Error("expire invitations", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddRows(TaskInvitationsExpire, expired)
	j.logger().Info("invitations expired", slog.Int64("expired", expired), slog.Time("cutoff", cutoff))
	return resultErr
}

func (j *InvitationExpiryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInvitationsExpire))
	}
	return slog.Default().With(slog.String("job", TaskInvitationsExpire))
}

func (j *InvitationExpiryJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *InvitationExpiryJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
