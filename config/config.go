// Package config loads runtime settings from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the checkboard service and CLI.
type Config struct {
	Addr string `env:"ADDR,default=:8080"`

	DBDriver          string        `env:"DB_DRIVER,default=sqlite3"`
	DBDSN             string        `env:"DB_DSN,default=checkboard.db"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	AllowedOrigins     []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE,default=300"`
	ActorHeader        string   `env:"ACTOR_HEADER,default=X-Actor-ID"`

	LogLevel     string `env:"LOG_LEVEL,default=info"`
	LogFormat    string `env:"LOG_FORMAT,default=console"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME,default=checkboard"`

	TemporaryColumnTTL time.Duration `env:"TEMPORARY_COLUMN_TTL,default=336h"`
	AuditWindowDays    int           `env:"AUDIT_WINDOW_DAYS,default=7"`
	RosterFile         string        `env:"ROSTER_FILE"`
}

// Load reads an optional .env file, then the process environment.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith populates a Config from l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("ADDR must not be empty")
	case c.DBDSN == "":
		return fmt.Errorf("DB_DSN must not be empty")
	case c.RateLimitPerMinute <= 0:
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	case c.ActorHeader == "":
		return fmt.Errorf("ACTOR_HEADER must not be empty")
	case c.LogFormat != "console" && c.LogFormat != "json":
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	case c.TemporaryColumnTTL <= 0:
		return fmt.Errorf("TEMPORARY_COLUMN_TTL must be positive, got %s", c.TemporaryColumnTTL)
	case c.AuditWindowDays < 1 || c.AuditWindowDays > 366:
		return fmt.Errorf("AUDIT_WINDOW_DAYS must be between 1 and 366, got %d", c.AuditWindowDays)
	}
	return nil
}
