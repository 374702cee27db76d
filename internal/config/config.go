package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the full moodengine configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Detector DetectorConfig `yaml:"detector"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string      `yaml:"driver"`       // sqlite, redis, memory
	Path        string      `yaml:"path"`         // sqlite database file
	JournalPath string      `yaml:"journal_path"` // event journal for non-sqlite drivers; empty disables it
	Redis       RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix"`
	HistoryCap int64  `yaml:"history_cap"`
}

// ServerConfig configures the gRPC daemon.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PipelineConfig tunes the turn pipeline.
type PipelineConfig struct {
	DecayWorkers  int           `yaml:"decay_workers"`
	DecayInterval time.Duration `yaml:"decay_interval"` // daemon sweep period; 0 disables
}

// #region defaults
// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "moodengine.db",
			Redis: RedisConfig{
				Addr:       "localhost:6379",
				Prefix:     "mood",
				HistoryCap: 1000,
			},
		},
		Server: ServerConfig{
			Addr:            "localhost:50061",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Detector: DefaultDetectorConfig(),
		Recovery: DefaultRecoveryConfig(),
		Pipeline: PipelineConfig{DecayWorkers: 8, DecayInterval: time.Hour},
	}
}

// #endregion defaults

// #region load-save
// Load reads a YAML file over the defaults and applies env overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	c.Store.Driver = envOr("MOOD_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = envOr("MOOD_DB", c.Store.Path)
	c.Store.JournalPath = envOr("MOOD_JOURNAL", c.Store.JournalPath)
	c.Store.Redis.Addr = envOr("MOOD_REDIS_ADDR", c.Store.Redis.Addr)
	c.Server.Addr = envOr("MOOD_ADDR", c.Server.Addr)
	c.Logging.Level = envOr("MOOD_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envOr("MOOD_LOG_FORMAT", c.Logging.Format)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load-save

// #region validate
// ValidDrivers lists the supported store drivers.
var ValidDrivers = []string{"sqlite", "redis", "memory"}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis driver"))
		}
		if c.Store.Redis.HistoryCap < 0 {
			errs = append(errs, errors.New("store.redis.history_cap must be >= 0"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("invalid store driver: %q (valid: %v)", c.Store.Driver, ValidDrivers))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("invalid logging level: %w", err))
	}
	switch c.Logging.Format {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("invalid logging format: %q", c.Logging.Format))
	}
	if c.Pipeline.DecayWorkers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.decay_workers must be positive, got %d", c.Pipeline.DecayWorkers))
	}
	if c.Pipeline.DecayInterval < 0 {
		errs = append(errs, fmt.Errorf("pipeline.decay_interval must be >= 0, got %s", c.Pipeline.DecayInterval))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout))
	}

	errs = append(errs, c.Detector.validate()...)
	errs = append(errs, c.Recovery.validate()...)
	return errors.Join(errs...)
}

// #endregion validate
