package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trailview/trailview/internal/app"
	"github.com/trailview/trailview/internal/audit"
	audithttp "github.com/trailview/trailview/internal/audit/http"
	"github.com/trailview/trailview/internal/platform/cache"
	"github.com/trailview/trailview/internal/platform/db"
	"github.com/trailview/trailview/internal/stream"
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

	broker := stream.NewBroker(redisClient, cfg.StreamBuffer)

	auditRepo := audit.NewRepository(dbpool)
	auditCache := audit.NewCache(redisClient, cfg.SummaryCacheTTL)
	auditService := audit.NewService(auditRepo, broker, auditCache, logger)
	auditExporter := audit.NewExporter()

	auditHandler := audithttp.NewHandler(audithttp.HandlerConfig{
		Logger:    logger,
		Service:   auditService,
		Exporter:  auditExporter,
		Heartbeat: cfg.StreamHeartbeat,
		Subscriber: audithttp.SubscriberFunc(func(ctx context.Context, tenantID string) (audithttp.Subscription, error) {
			return broker.Subscribe(ctx, tenantID)
		}),
	})

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuditHandler: auditHandler,
	})

	server := &http.Server{
		Addr:        cfg.AppAddr,
		Handler:     router,
		ReadTimeout: cfg.AppReadTimeout,
		// WriteTimeout stays disabled by default so SSE connections are not
		// severed mid-stream.
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  cfg.AppIdleTimeout,
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
