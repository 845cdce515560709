package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"modrota/internal/cache"
	"modrota/internal/config"
	"modrota/internal/database"
	"modrota/internal/events"
	v1 "modrota/internal/handlers/api/v1"
	"modrota/internal/middleware"
	"modrota/internal/monitoring"
	"modrota/internal/repositories"
	"modrota/internal/router"
	"modrota/internal/scheduler"
	"modrota/internal/services"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewManager(&cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		return err
	}

	cacheLayer, err := cache.New(&cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer cacheLayer.Close()

	bus := events.NewInMemoryEventBus(events.DefaultEventBusConfig(), logger)
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer bus.Stop(context.Background())

	repos := repositories.NewCollection(db, logger)
	svcs := services.NewCollection(repos, cacheLayer, bus, cfg, logger)

	metrics := monitoring.NewMetrics()
	if err := metrics.Subscribe(bus); err != nil {
		return err
	}

	moderation := v1.NewModerationHandler(svcs, logger)
	feed, err := v1.NewEventFeedHandler(bus, logger)
	if err != nil {
		return err
	}

	handler := router.New(router.Deps{
		Moderation: moderation,
		EventFeed:  feed,
		Auth:       middleware.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, logger),
		Metrics:    metrics,
		DB:         db,
		Cache:      cacheLayer,
		Logger:     logger,
	})

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(cfg.Scheduler, svcs, metrics, logger)
		if err := sched.Start(); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening",
			zap.String("addr", server.Addr),
			zap.String("environment", cfg.Server.Environment),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Warn("Scheduler shutdown interrupted", zap.Error(err))
		}
	}
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		zcfg := zap.NewProductionConfig()
		if err := zcfg.Level.UnmarshalText([]byte(cfg.Logging.Level)); err == nil {
			return zcfg.Build()
		}
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
