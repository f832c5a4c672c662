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

	"github.com/smeta-erp/smeta-erp/internal/app"
	"github.com/smeta-erp/smeta-erp/internal/audit"
	"github.com/smeta-erp/smeta-erp/internal/authz"
	"github.com/smeta-erp/smeta-erp/internal/observability"
	"github.com/smeta-erp/smeta-erp/internal/permissions"
	"github.com/smeta-erp/smeta-erp/internal/platform/cache"
	"github.com/smeta-erp/smeta-erp/internal/platform/db"
	"github.com/smeta-erp/smeta-erp/internal/roles"
	"github.com/smeta-erp/smeta-erp/internal/rolesync"
	"github.com/smeta-erp/smeta-erp/internal/shared"
	"github.com/smeta-erp/smeta-erp/internal/tenants"
	"github.com/smeta-erp/smeta-erp/internal/users"
	"github.com/smeta-erp/smeta-erp/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "smeta_session", cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	grantsCache := users.NewGrantsCache(redisClient, cfg.GrantsCacheTTL)
	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, grantsCache, logger)

	syncRepo := rolesync.NewRepository(dbpool)
	syncEngine := rolesync.NewEngine(syncRepo, grantsCache, metrics, logger)

	permissionsRepo := permissions.NewRepository(dbpool)
	permissionsService := permissions.NewService(permissionsRepo, auditLogger, syncEngine, grantsCache, logger)
	if err := permissionsService.EnsureCatalog(ctx); err != nil {
		logger.Error("ensure permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, auditLogger, grantsCache, logger)

	queue, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job queue", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("job queue close", slog.Any("error", err))
		}
	}()

	auditRepo := audit.NewRepository(dbpool)
	auditService := audit.NewService(auditRepo)

	guard := authz.Middleware{Logger: logger, Metrics: metrics}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		Actors:             usersService,
		PermissionsHandler: permissions.NewHandler(logger, permissionsService, guard),
		RolesHandler:       roles.NewHandler(logger, rolesService, guard, queue),
		UsersHandler:       users.NewHandler(logger, usersService),
		TenantsHandler:     tenants.NewHandler(logger, tenants.NewRepository(dbpool), guard),
		AuditHandler:       audit.NewHandler(logger, auditService, guard),
		Metrics:            metrics,
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
