// Package di wires the application graph. Construction is explicit and
// ordered: configuration first, then infrastructure clients, then the
// services built on them.
package di

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"reporting-backend/internal/config"
	"reporting-backend/internal/infrastructure/cache"
	"reporting-backend/internal/infrastructure/observability"
	"reporting-backend/internal/infrastructure/persistence"
	"reporting-backend/internal/interfaces/http/handlers"
	"reporting-backend/internal/interfaces/http/rest"
	"reporting-backend/internal/permissions"
	"reporting-backend/internal/query"
	"reporting-backend/internal/reporting"
	"reporting-backend/internal/warmer"
)

// Container holds the fully wired application.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Pool        *pgxpool.Pool
	RedisClient *redis.Client

	Store    cache.Store
	Keys     *cache.KeyBuilder
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Service *reporting.Service
	Warmer  *warmer.Warmer
	Stats   *cache.StatsCollector

	Router *rest.Router
}

// New constructs the application graph from configuration.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.ConnTimeout
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store := cache.NewRedisStore(redisClient, logger)
	keys := cache.NewKeyBuilder(cfg.Cache.KeyPrefix)

	executor := persistence.NewPgxExecutor(pool, logger)
	columnRegistry := persistence.NewColumnRegistry(pool, logger)
	catalog := persistence.NewCatalog(pool)

	validator := query.NewValidator(columnRegistry, logger)
	resolver := permissions.NewSQLAccessResolver(pool, logger)
	engine := permissions.NewEngine(logger, metrics)

	service := reporting.NewService(store, keys, catalog, validator, executor,
		resolver, engine, cfg.Cache.TTL, logger, metrics)

	// Lock keys live in their own namespace so cache invalidation can never
	// delete a held warming lock.
	lock := warmer.NewLock(store, cfg.Cache.KeyPrefix+"-locks", cfg.Warmer.LockTTL, logger)
	warmSvc := warmer.NewWarmer(store, keys, catalog, executor, lock,
		cfg.Cache.TTL, logger, metrics)

	stats := cache.NewStatsCollector(store, keys, cfg.Cache.StatsSampleSize, logger)

	analyticsHandler := handlers.NewAnalyticsHandler(service, warmSvc, stats, logger)
	healthHandler := handlers.NewHealthHandler(pool, logger)
	router := rest.NewRouter(analyticsHandler, healthHandler, registry, logger)

	return &Container{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		RedisClient: redisClient,
		Store:       store,
		Keys:        keys,
		Registry:    registry,
		Metrics:     metrics,
		Service:     service,
		Warmer:      warmSvc,
		Stats:       stats,
		Router:      router,
	}, nil
}

// Close releases every long-lived resource in reverse construction order.
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	_ = c.Logger.Sync()
}

func buildLogger(cfg config.Logging) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
