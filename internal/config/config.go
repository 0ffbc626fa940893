// Package config provides layered configuration loading for the reporting
// backend. The loading order, from lowest to highest priority:
//
//  1. Default values (in code)
//  2. Optional YAML file (CONFIG_FILE, default config/base.yaml)
//  3. Environment variables
//
// The final configuration is validated before use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the service.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Cache    Cache    `yaml:"cache"`
	Warmer   Warmer   `yaml:"warmer"`
	Logging  Logging  `yaml:"logging"`
}

// Server holds HTTP server settings.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Database holds PostgreSQL connection settings.
type Database struct {
	URL         string        `yaml:"url"`
	MaxConns    int32         `yaml:"maxConns"`
	ConnTimeout time.Duration `yaml:"connTimeout"`
}

// Redis holds key-value store connection settings.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// Cache holds analytics cache behavior settings. TTL and KeyPrefix are
// hot-reloadable via the config watcher.
type Cache struct {
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
	// StatsSampleSize bounds how many entries the stats collector reads
	// when estimating memory usage.
	StatsSampleSize int `yaml:"statsSampleSize"`
}

// Warmer holds cache warming settings.
type Warmer struct {
	Enabled bool `yaml:"enabled"`
	// Interval between scheduled WarmAll runs.
	Interval time.Duration `yaml:"interval"`
	// LockTTL bounds how long a crashed warmer can hold the per-data-source
	// lock before it self-expires.
	LockTTL time.Duration `yaml:"lockTTL"`
}

// Logging holds logger settings.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with sensible defaults so the service can
// run without any configuration file.
func Default() *Config {
	return &Config{
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: Database{
			URL:         "postgres://localhost:5432/reporting",
			MaxConns:    10,
			ConnTimeout: 10 * time.Second,
		},
		Redis: Redis{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Cache: Cache{
			KeyPrefix:       "analytics",
			TTL:             30 * time.Minute,
			StatsSampleSize: 50,
		},
		Warmer: Warmer{
			Enabled:  true,
			Interval: 15 * time.Minute,
			LockTTL:  2 * time.Minute,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config/base.yaml"
	}
	if err := loadFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// loadEnv overlays environment variables; they are the highest priority
// configuration source.
func loadEnv(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil && ttl > 0 {
			cfg.Cache.TTL = ttl
		}
	}
	if v := os.Getenv("CACHE_KEY_PREFIX"); v != "" {
		cfg.Cache.KeyPrefix = v
	}
	if v := os.Getenv("WARMER_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Warmer.Enabled = enabled
		}
	}
	if v := os.Getenv("WARMER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Warmer.Interval = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for values that would break the service
// at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.KeyPrefix == "" {
		return fmt.Errorf("cache key prefix must not be empty")
	}
	if c.Warmer.LockTTL <= 0 {
		return fmt.Errorf("warmer lock TTL must be positive, got %s", c.Warmer.LockTTL)
	}
	if c.Warmer.Enabled && c.Warmer.Interval <= 0 {
		return fmt.Errorf("warmer interval must be positive when warming is enabled")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL must not be empty")
	}
	return nil
}
