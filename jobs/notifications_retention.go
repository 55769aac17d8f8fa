package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/1-to-100/backoffice/internal/jobs"
	"github.com/1-to-100/backoffice/internal/notifications"
	"github.com/1-to-100/backoffice/internal/shared"
)

// NotificationRetentionJob purges notification records older than the
// retention window. Spent idempotency reservations ride the same sweep.
type NotificationRetentionJob struct {
	Notifications *notifications.Service
	Keys          *shared.IdempotencyStore
	Retention     time.Duration
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
	clock         func() time.Time
}

// NewNotificationRetentionJob wires dependencies for the purge handler.
// keys may be nil when no idempotency sweep is wanted.
func NewNotificationRetentionJob(notificationsSvc *notifications.Service, keys *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationRetentionJob {
	return &NotificationRetentionJob{
		Notifications: notificationsSvc,
		Keys:          keys,
		Retention:     retention,
		Logger:        logger,
		Metrics:       metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes notification retention tasks.
func (j *NotificationRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Notifications == nil {
		return errors.New("notifications retention: handler not configured")
	}
	var payload RetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	retention := j.Retention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	if retention <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskNotificationsRetention)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-retention)
	purged, err := j.Notifications.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.logger().Error("purge notifications", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddRows(TaskNotificationsRetention, purged)
	j.logger().Info("notifications purged", slog.Int64("purged", purged), slog.Time("cutoff", cutoff))

	if j.Keys != nil {
		dropped, err := j.Keys.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			j.logger().Warn("purge idempotency keys", slog.Any("error", err))
		} else if dropped > 0 {
			j.logger().Info("idempotency keys purged", slog.Int64("purged", dropped))
		}
	}
	return resultErr
}

func (j *NotificationRetentionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNotificationsRetention))
	}
	return slog.Default().With(slog.String("job", TaskNotificationsRetention))
}

func (j *NotificationRetentionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *NotificationRetentionJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
