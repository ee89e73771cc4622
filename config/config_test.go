package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/checkboard/config"
)

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := config.LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "checkboard.db", cfg.DBDSN)
	assert.Equal(t, 30*time.Minute, cfg.DBConnMaxLifetime)
	assert.Equal(t, 300, cfg.RateLimitPerMinute)
	assert.Equal(t, "X-Actor-ID", cfg.ActorHeader)
	assert.Equal(t, 14*24*time.Hour, cfg.TemporaryColumnTTL)
	assert.Equal(t, 7, cfg.AuditWindowDays)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Empty(t, cfg.RosterFile)
}

func TestLoadWith_Overrides(t *testing.T) {
	cfg, err := config.LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"DB_DRIVER":            "postgres",
		"DB_DSN":               "postgres://localhost/checkboard",
		"CORS_ALLOWED_ORIGINS": "https://a.example,https://b.example",
		"LOG_FORMAT":           "json",
		"TEMPORARY_COLUMN_TTL": "48h",
		"AUDIT_WINDOW_DAYS":    "30",
	}))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 48*time.Hour, cfg.TemporaryColumnTTL)
	assert.Equal(t, 30, cfg.AuditWindowDays)
}

func TestLoadWith_Rejects(t *testing.T) {
	for name, env := range map[string]map[string]string{
		"bad format":      {"LOG_FORMAT": "xml"},
		"zero rate":       {"RATE_LIMIT_PER_MINUTE": "0"},
		"window too wide": {"AUDIT_WINDOW_DAYS": "400"},
		"negative ttl":    {"TEMPORARY_COLUMN_TTL": "-1h"},
		"not a duration":  {"DB_CONN_MAX_LIFETIME": "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadWith(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}
}
