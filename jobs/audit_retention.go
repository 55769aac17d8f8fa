package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/1-to-100/backoffice/internal/jobs"
)

// AuditStore is the slice of the audit repository the retention job needs.
type AuditStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRetentionJob purges audit events older than the retention window.
type AuditRetentionJob struct {
	Store     AuditStore
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewAuditRetentionJob wires dependencies for the purge handler.
func NewAuditRetentionJob(store AuditStore, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionJob {
	return &AuditRetentionJob{
		Store:     store,
		Retention: retention,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes audit retention tasks.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("audit retention: handler not configured")
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

	tracker := j.metrics().Track(TaskAuditRetention)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-retention)
	purged, err := j.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		resultErr = err
		j.logger().Error("purge audit events", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddRows(TaskAuditRetention, purged)
	j.logger().Info("audit events purged", slog.Int64("purged", purged), slog.Time("cutoff", cutoff))
	return resultErr
}

func (j *AuditRetentionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRetention))
	}
	return slog.Default().With(slog.String("job", TaskAuditRetention))
}

func (j *AuditRetentionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AuditRetentionJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
