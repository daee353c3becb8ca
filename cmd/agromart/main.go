package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/agromart/agromart/internal/admin"
	"github.com/agromart/agromart/internal/app"
	"github.com/agromart/agromart/internal/audit"
	audithttp "github.com/agromart/agromart/internal/audit/http"
	"github.com/agromart/agromart/internal/auth"
	"github.com/agromart/agromart/internal/observability"
	"github.com/agromart/agromart/internal/platform/cache"
	"github.com/agromart/agromart/internal/platform/db"
	"github.com/agromart/agromart/internal/policy"
	"github.com/agromart/agromart/internal/rbac"
	"github.com/agromart/agromart/internal/shared"
	"github.com/agromart/agromart/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("agromart exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	source := policy.SourceFor(cfg.PolicyFile)
	doc, err := source.Load(ctx)
	if err != nil {
		return err
	}
	engine, err := policy.Build(doc)
	if err != nil {
		return err
	}
	policyStore, err := policy.NewStore(engine)
	if err != nil {
		return err
	}
	logger.Info("policy loaded",
		slog.String("source", source.Name()),
		slog.Int("roles", len(engine.Graph().Roles())),
		slog.Int("permissions", len(engine.Catalog().Permissions())))

	metrics := observability.NewMetrics()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	pool, err := db.New(ctx, cfg.Postgres("agromart"))
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	var auditStore audit.Store = audit.NewRepository(pool)
	if cfg.AuditStore == app.AuditStoreMemory {
		logger.Warn("audit entries kept in memory only")
		auditStore = audit.NewMemoryStore()
	}

	redisOpts := cfg.Redis().AsynqOptions()
	var retrier audit.Retrier
	if cfg.AuditRetryEnabled {
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("asynq client close", slog.Any("error", err))
			}
		}()
		retrier = jobClient
	}

	recorder := audit.NewRecorder(audit.RecorderConfig{
		Store:        auditStore,
		Retrier:      retrier,
		Logger:       logger,
		Metrics:      metrics,
		WriteTimeout: cfg.AuditWriteTimeout,
		BufferSize:   cfg.AuditBufferSize,
	})

	gate := rbac.NewGate(policyStore, logger, metrics)
	reloader := policy.NewReloader(policy.ReloaderConfig{
		Store:   policyStore,
		Source:  source,
		Client:  redisClient,
		Channel: cfg.PolicyReloadChannel,
		Logger:  logger,
		OnReload: []func(*policy.Engine, error){
			gate.LogBindingFaults,
			func(_ *policy.Engine, err error) { metrics.ObservePolicyReload(err) },
		},
	})
	notify := func(ctx context.Context, reason string) error {
		return policy.Publish(ctx, redisClient, cfg.PolicyReloadChannel, reason)
	}

	sessions := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	adminService := admin.NewService(admin.NewRepository(pool), recorder, policyStore, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Auth:          auth.NewMiddleware(sessions, logger),
		AdminHandler:  admin.NewHandler(logger, adminService, gate),
		AuditHandler:  audithttp.NewHandler(logger, audit.NewService(auditStore), gate),
		PolicyHandler: rbac.NewHandler(logger, gate, policyStore, reloader, recorder, notify),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
		RequestLog:    !cfg.IsProduction(),
	})

	gate.LogBindingFaults(policyStore.Snapshot(), nil)

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server starting", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := reloader.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("policy reload listener stopped", slog.Any("error", err))
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		if err := recorder.Close(shutdownCtx); err != nil {
			logger.Error("audit recorder close", slog.Any("error", err))
		}
		return nil
	})

	return group.Wait()
}
