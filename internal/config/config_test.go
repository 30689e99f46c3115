package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = strings.Repeat("s", 32)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", secret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, uint(3), cfg.ReadRetryMaxTries)
	assert.Equal(t, 50*time.Millisecond, cfg.ReadRetryInitialInterval)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", secret)
	t.Setenv("PORTAL_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://portal@localhost/portal?sslmode=disable")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("OTEL_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0.001)
	assert.False(t, cfg.OTelEnabled)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "short secret", env: map[string]string{"SESSION_SECRET": "short"}},
		{name: "postgres without url", env: map[string]string{"SESSION_SECRET": secret, "PORTAL_STORE": "postgres"}},
		{name: "unknown store", env: map[string]string{"SESSION_SECRET": secret, "PORTAL_STORE": "redis"}},
		{name: "bad duration", env: map[string]string{"SESSION_SECRET": secret, "SESSION_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
