// Command api runs the reporting backend HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"reporting-backend/internal/config"
	"reporting-backend/internal/di"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to wire application: %v", err)
	}
	defer container.Close()
	logger := container.Logger

	// Hot-reload the runtime-safe settings when the config file changes.
	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config/base.yaml"
	}
	if watcher, err := config.NewWatcher(configPath, logger); err == nil {
		watcher.OnChange(func(next *config.Config) {
			logger.Info("applying reloaded settings",
				zap.Duration("cache_ttl", next.Cache.TTL),
				zap.Duration("warmer_interval", next.Warmer.Interval))
		})
		watcher.Start()
		defer watcher.Close()
	} else if !os.IsNotExist(err) {
		logger.Warn("config watcher unavailable", zap.Error(err))
	}

	if cfg.Warmer.Enabled {
		go warmLoop(ctx, container, cfg.Warmer.Interval)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      container.Router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// warmLoop runs a full warming sweep on startup and then on every tick. The
// per-data-source lock makes overlapping sweeps across replicas harmless.
func warmLoop(ctx context.Context, container *di.Container, interval time.Duration) {
	logger := container.Logger

	run := func() {
		result, err := container.Warmer.WarmAll(ctx)
		if err != nil {
			logger.Error("warming sweep failed", zap.Error(err))
			return
		}
		logger.Info("warming sweep finished",
			zap.Int("entries_cached", result.EntriesCached),
			zap.Int("total_rows", result.TotalRows),
			zap.Int("failed", result.Failed))
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
