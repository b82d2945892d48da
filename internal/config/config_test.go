package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "bankrecon.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.SuggestionCacheTTL)
	assert.Equal(t, 3, cfg.ReconcileMaxRetries)
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 4, cfg.ImportConcurrency)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/recon.db")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SUGGESTION_CACHE_TTL", "2m")
	t.Setenv("RECONCILE_MAX_RETRIES", "5")
	t.Setenv("IMPORT_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/recon.db", cfg.DBPath)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2*time.Minute, cfg.SuggestionCacheTTL)
	assert.Equal(t, 5, cfg.ReconcileMaxRetries)
	assert.Equal(t, 1, cfg.ImportConcurrency)
}

func TestLoad_ZeroTTLDisablesCache(t *testing.T) {
	t.Setenv("SUGGESTION_CACHE_TTL", "0s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.SuggestionCacheTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad ttl", "SUGGESTION_CACHE_TTL", "soon"},
		{"negative ttl", "SUGGESTION_CACHE_TTL", "-5s"},
		{"bad format", "LOG_FORMAT", "xml"},
		{"negative retries", "RECONCILE_MAX_RETRIES", "-1"},
		{"zero upload size", "MAX_UPLOAD_BYTES", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
