package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agromart/agromart/internal/app"
	"github.com/agromart/agromart/internal/audit"
	jobmetrics "github.com/agromart/agromart/internal/jobs"
	"github.com/agromart/agromart/internal/platform/cache"
	"github.com/agromart/agromart/internal/platform/db"
	"github.com/agromart/agromart/jobs"
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

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var store audit.Store
	if cfg.AuditStore == app.AuditStoreMemory {
		logger.Warn("worker audit store is in memory, retried entries will not be durable")
		store = audit.NewMemoryStore()
	} else {
		pool, err := db.New(ctx, cfg.Postgres("agromart-worker"))
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		store = audit.NewRepository(pool)
	}

	metrics := jobmetrics.NewMetrics(prometheus.DefaultRegisterer)
	appendJob := jobs.NewAuditAppendJob(store, logger, metrics)
	reloadJob := &jobs.PolicyReloadJob{
		Client:  redisClient,
		Channel: cfg.PolicyReloadChannel,
		Logger:  logger,
		Metrics: metrics,
	}

	var cron []jobs.CronRegistration
	if cfg.PolicyReloadCron != "" {
		reloadTask, err := jobs.NewPolicyReloadTask("scheduled")
		if err != nil {
			logger.Error("build policy reload task", slog.Any("error", err))
			os.Exit(1)
		}
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.PolicyReloadCron,
			Task:    reloadTask,
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().AsynqOptions(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditAppend, Handler: appendJob.Handle},
			{Type: jobs.TaskPolicyReload, Handler: reloadJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
