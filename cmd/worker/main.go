package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/smeta-erp/smeta-erp/internal/app"
	jobmetrics "github.com/smeta-erp/smeta-erp/internal/jobs"
	"github.com/smeta-erp/smeta-erp/internal/observability"
	"github.com/smeta-erp/smeta-erp/internal/platform/cache"
	"github.com/smeta-erp/smeta-erp/internal/platform/db"
	"github.com/smeta-erp/smeta-erp/internal/rolesync"
	"github.com/smeta-erp/smeta-erp/internal/users"
	"github.com/smeta-erp/smeta-erp/jobs"
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

	grantsCache := users.NewGrantsCache(redisClient, cfg.GrantsCacheTTL)
	syncRepo := rolesync.NewRepository(pool)
	syncEngine := rolesync.NewEngine(syncRepo, grantsCache, observability.NewMetrics(), logger)
	syncJob := jobs.NewTemplateSyncJob(syncEngine, syncRepo, logger, jobmetrics.NewMetrics(nil))

	syncTask, err := jobs.NewTemplateSyncTask(jobs.TemplateSyncPayload{})
	if err != nil {
		logger.Error("build template sync task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRoleTemplateSync, Handler: syncJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SyncCron, Task: syncTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
