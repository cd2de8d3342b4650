package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"devshop/internal/db"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

// APIConfig is shared by the API server and the tick worker.
type APIConfig struct {
	Addr            string        `env:"DEVSHOP_API_ADDR"         envDefault:":8080"`
	Port            string        `env:"PORT"`
	Store           string        `env:"DEVSHOP_STORE"            envDefault:"postgres"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	DBMaxConns      int32         `env:"DEVSHOP_DB_MAX_CONNS"`
	DBMinConns      int32         `env:"DEVSHOP_DB_MIN_CONNS"`
	DBMaxConnLife   time.Duration `env:"DEVSHOP_DB_MAX_CONN_LIFETIME"`
	DBMaxConnIdle   time.Duration `env:"DEVSHOP_DB_MAX_CONN_IDLE_TIME"`
	SQLitePath      string        `env:"DEVSHOP_SQLITE_PATH"      envDefault:"devshop.db"`
	Migrate         bool          `env:"DEVSHOP_MIGRATE"          envDefault:"true"`
	TickEvery       time.Duration `env:"DEVSHOP_TICK_EVERY"       envDefault:"5s"`
	TickOnCreate    bool          `env:"DEVSHOP_TICK_ON_CREATE"`
	TickConcurrency int           `env:"DEVSHOP_TICK_CONCURRENCY" envDefault:"4"`
	BalanceFile     string        `env:"DEVSHOP_BALANCE_FILE"`
	LogLevel        string        `env:"DEVSHOP_LOG_LEVEL"        envDefault:"info"`
	WorkerRunOnce   bool          `env:"DEVSHOP_WORKER_RUN_ONCE"`
}

type CLIConfig struct {
	APIBaseURL string `env:"DEVSHOP_API_BASE_URL" envDefault:"http://localhost:8080"`
}

func LoadAPIFromEnv() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if port := strings.TrimSpace(cfg.Port); port != "" {
		cfg.Addr = port
	}
	if cfg.Addr != "" && !strings.Contains(cfg.Addr, ":") {
		cfg.Addr = ":" + cfg.Addr
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	return cfg, cfg.validate()
}

func (c APIConfig) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("DEVSHOP_SQLITE_PATH is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("DEVSHOP_STORE must be postgres, sqlite or memory, got %q", c.Store)
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 || c.DBMaxConnLife < 0 || c.DBMaxConnIdle < 0 {
		return fmt.Errorf("DEVSHOP_DB_* pool settings must not be negative")
	}
	if c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DEVSHOP_DB_MIN_CONNS must be <= DEVSHOP_DB_MAX_CONNS")
	}
	if c.TickEvery <= 0 {
		return fmt.Errorf("DEVSHOP_TICK_EVERY must be > 0")
	}
	if c.TickConcurrency < 1 {
		return fmt.Errorf("DEVSHOP_TICK_CONCURRENCY must be >= 1")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// PoolOptions sizes the Postgres pool. Unset values keep the db defaults.
func (c APIConfig) PoolOptions() db.PoolOptions {
	return db.PoolOptions{
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: c.DBMaxConnLife,
		MaxConnIdleTime: c.DBMaxConnIdle,
	}
}

func (c APIConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("DEVSHOP_LOG_LEVEL: %w", err)
	}
	return level, nil
}

func LoadCLIFromEnv() CLIConfig {
	var cfg CLIConfig
	if err := env.Parse(&cfg); err != nil || strings.TrimSpace(cfg.APIBaseURL) == "" {
		cfg.APIBaseURL = "http://localhost:8080"
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg
}
