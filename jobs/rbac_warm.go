package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/1-to-100/backoffice/internal/jobs"
	"github.com/1-to-100/backoffice/internal/rbac"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RBACWarmJob primes the permission cache for every role so the first
// authorize call after a deploy or cache flush does not pay the database
// round trip.
type RBACWarmJob struct {
	RBAC    *rbac.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRBACWarmJob wires dependencies for the warm handler.
func NewRBACWarmJob(rbacSvc *rbac.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RBACWarmJob {
	return &RBACWarmJob{
		RBAC:    rbacSvc,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes permission cache warm tasks.
func (j *RBACWarmJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.RBAC == nil {
		return errors.New("rbac warm: handler not configured")
	}
	var payload RBACWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskRBACWarm)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	warmed, err := j.RBAC.Warm(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("warm permission cache", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddRows(TaskRBACWarm, int64(warmed))
	j.logger().Info("permission cache warmed", slog.Int("roles", warmed), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *RBACWarmJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRBACWarm))
	}
	return slog.Default().With(slog.String("job", TaskRBACWarm))
}

func (j *RBACWarmJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RBACWarmJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
