package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/1-to-100/backoffice/internal/app"
	"github.com/1-to-100/backoffice/internal/audit"
	"github.com/1-to-100/backoffice/internal/auth"
	"github.com/1-to-100/backoffice/internal/customers"
	"github.com/1-to-100/backoffice/internal/notifications"
	"github.com/1-to-100/backoffice/internal/observability"
	"github.com/1-to-100/backoffice/internal/platform/cache"
	"github.com/1-to-100/backoffice/internal/platform/db"
	"github.com/1-to-100/backoffice/internal/rbac"
	"github.com/1-to-100/backoffice/internal/roles"
	"github.com/1-to-100/backoffice/internal/shared"
	"github.com/1-to-100/backoffice/internal/teams"
	"github.com/1-to-100/backoffice/internal/users"
	"github.com/1-to-100/backoffice/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	metrics := observability.NewMetrics()

	jwks := auth.NewJWKSCache(cfg.IssuerJWKSURL, http.DefaultClient, cfg.JWKSRefreshTTL, cfg.JWKSMaxStale)
	verifier := auth.NewVerifier(jwks, cfg.IssuerURL, cfg.IssuerAudience)

	authRepo := auth.NewRepository(pool)
	resolver := auth.NewResolver(authRepo)
	overlay := auth.NewOverlay(authRepo)
	authenticator := auth.NewAuthenticator(verifier, resolver, overlay, logger, metrics)

	auditService := audit.NewService(audit.NewRepository(pool), logger)
	auditHandler := audit.NewHandler(logger, auditService)

	issuerClient := auth.NewIssuerClient(cfg.IssuerAdminURL, cfg.IssuerAdminToken)
	authService := auth.NewService(authRepo, overlay, issuerClient, auditService, cfg.InviteTTL)
	authHandler := auth.NewHandler(logger, authService, verifier, resolver)

	rbacService := rbac.NewService(rbac.NewStore(pool), rbac.NewCache(redisClient, cfg.PermissionCacheTTL))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger, Metrics: metrics}

	idempotencyStore := shared.NewIdempotencyStore(pool)

	usersService := users.NewService(users.NewRepository(pool), auditService)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	rolesService := roles.NewService(roles.NewRepository(pool), rbacService, auditService)
	rolesHandler := roles.NewHandler(logger, rolesService, rbacMiddleware)

	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	customersService := customers.NewService(customers.NewRepository(pool), auditService)
	customersHandler := customers.NewHandler(logger, customersService, rbacMiddleware)

	teamsService := teams.NewService(teams.NewRepository(pool), auditService)
	teamsHandler := teams.NewHandler(logger, teamsService, rbacMiddleware)

	notificationsService := notifications.NewService(notifications.NewRepository(pool), auditService, idempotencyStore)
	notificationsHandler := notifications.NewHandler(logger, notificationsService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	if warmed, err := rbacService.Warm(ctx); err != nil {
		logger.Warn("warm permission cache", slog.Any("error", err))
	} else {
		logger.Info("permission cache warmed", slog.Int("roles", warmed))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Authenticator:        authenticator,
		AuthHandler:          authHandler,
		UsersHandler:         usersHandler,
		RolesHandler:         rolesHandler,
		PermissionsHandler:   permissionsHandler,
		CustomersHandler:     customersHandler,
		TeamsHandler:         teamsHandler,
		NotificationsHandler: notificationsHandler,
		AuditHandler:         auditHandler,
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
