package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carscout/internal/api"
	"carscout/internal/config"
	"carscout/internal/coordinator"
	"carscout/internal/fetch"
	"carscout/internal/monitor"
	"carscout/internal/monitoring"
	"carscout/internal/processor"
	"carscout/internal/sites"
	"carscout/internal/storage"

	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("could not load config", zap.Error(err))
	}

	ctx := context.Background()

	// Initialize Storage Layer
	store, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}
	seenCache := storage.NewSeenCache(cfg.RedisAddr,
		time.Duration(cfg.SeenCacheTTLDays)*24*time.Hour)
	if err := seenCache.Ping(ctx); err != nil {
		logger.Warn("redis unreachable, seen cache disabled", zap.Error(err))
		seenCache = nil
	}

	// Initialize Monitoring
	metrics := monitoring.NewMetrics()

	// Initialize Fetchers
	uaPool := fetch.NewUAPool()
	fetchOpts := fetch.Options{
		MinDelay:   time.Duration(cfg.MinDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		MaxRetries: cfg.MaxRetries,
		Timeout:    cfg.FetchTimeout(),
	}
	httpClient := fetch.NewClient(uaPool, fetchOpts, logger)
	browserClient := fetch.NewBrowserClient(uaPool, fetchOpts, logger)

	// Initialize Pipeline
	registry := sites.NewRegistry()
	var cache processor.SeenCache
	if seenCache != nil {
		cache = seenCache
	}
	proc := processor.New(store, cache, metrics, logger)
	coordOpts := coordinator.DefaultOptions()
	coordOpts.Workers = cfg.ScrapeWorkers
	coordOpts.SiteGapMin = time.Duration(cfg.SiteGapMinMs) * time.Millisecond
	coordOpts.SiteGapMax = time.Duration(cfg.SiteGapMaxMs) * time.Millisecond
	coord := coordinator.New(registry, store, proc, httpClient, browserClient, metrics, logger, coordOpts)
	mon := monitor.New(registry, store, httpClient, logger)

	// Initialize API Server
	server := api.NewServer(cfg, coord, mon, store, logger)

	// Graceful Shutdown
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	logger.Info("server started", zap.String("port", cfg.ServerPort))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	coord.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	store.Close()
	logger.Info("server exiting")
}
