package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/trailview/trailview/internal/app"
	"github.com/trailview/trailview/internal/audit"
	"github.com/trailview/trailview/internal/platform/cache"
	"github.com/trailview/trailview/internal/platform/db"
	"github.com/trailview/trailview/jobs"
)

func main() {
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
		logger.Error("connect database", slog.Any("error", err))
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
	auditCache := audit.NewCache(redisClient, cfg.SummaryCacheTTL)
	auditService := audit.NewService(auditRepo, nil, auditCache, logger)

	cleanupJob := jobs.NewRetentionCleanupJob(auditRepo, logger)
	warmupJob := jobs.NewSummaryWarmupJob(auditService, auditRepo, logger)

	cleanupTask, err := jobs.NewRetentionCleanupTask(jobs.RetentionCleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewSummaryWarmupTask(jobs.SummaryWarmupPayload{ActiveWithinHours: 24})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRetentionCleanup, Handler: cleanupJob.Handle},
			{Type: jobs.TaskSummaryWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RetentionCleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.SummaryWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
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
