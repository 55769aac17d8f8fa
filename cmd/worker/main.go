package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/1-to-100/backoffice/internal/app"
	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/notifications"
	"github.com/1-to-100/backoffice/internal/platform/cache"
	"github.com/1-to-100/backoffice/internal/platform/db"
	"github.com/1-to-100/backoffice/internal/rbac"
	"github.com/1-to-100/backoffice/internal/shared"
	"github.com/1-to-100/backoffice/internal/users"
	"github.com/1-to-100/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo, logger)

	rbacService := rbac.NewService(rbac.NewStore(pool), rbac.NewCache(redisClient, cfg.PermissionCacheTTL))
	usersService := users.NewService(users.NewRepository(pool), auditService)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	notificationsService := notifications.NewService(notifications.NewRepository(pool), auditService, idempotencyStore)

	warmJob := jobs.NewRBACWarmJob(rbacService, logger, nil)
	expiryJob := jobs.NewInvitationExpiryJob(usersService, cfg.InviteTTL, logger, nil)
	notificationsJob := jobs.NewNotificationRetentionJob(notificationsService, idempotencyStore, cfg.NotificationRetention, logger, nil)
	auditJob := jobs.NewAuditRetentionJob(auditRepo, cfg.AuditRetention, logger, nil)

	warmTask, err := jobs.NewRBACWarmTask()
	if err != nil {
		logger.Error("build warm task", slog.Any("error", err))
		os.Exit(1)
	}
	expiryTask, err := jobs.NewInvitationsExpireTask(jobs.InvitationsExpirePayload{})
	if err != nil {
		logger.Error("build expiry task", slog.Any("error", err))
		os.Exit(1)
	}
	notificationsTask, err := jobs.NewNotificationsRetentionTask(jobs.RetentionPayload{})
	if err != nil {
		logger.Error("build notifications retention task", slog.Any("error", err))
		os.Exit(1)
	}
	auditTask, err := jobs.NewAuditRetentionTask(jobs.RetentionPayload{})
	if err != nil {
		logger.Error("build audit retention task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRBACWarm, Handler: warmJob.Handle},
			{Type: jobs.TaskInvitationsExpire, Handler: expiryJob.Handle},
			{Type: jobs.TaskNotificationsRetention, Handler: notificationsJob.Handle},
			{Type: jobs.TaskAuditRetention, Handler: auditJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/10 * * * *", Task: warmTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "45 0 * * *", Task: expiryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 1 * * *", Task: notificationsTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: auditTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	if _, err := client.EnqueueRBACWarm(ctx); err != nil {
		logger.Warn("enqueue initial warm", slog.Any("error", err))
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
