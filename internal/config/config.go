package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string // console or json

	// SuggestionCacheTTL of zero turns suggestion caching off.
	SuggestionCacheTTL  time.Duration
	ReconcileMaxRetries int
	MaxUploadBytes      int64
	ImportConcurrency   int

	// SeedBookingsPath is loaded into an empty database at startup. Empty
	// disables seeding.
	SeedBookingsPath string
}

// Load reads configuration from the environment, after loading a .env file
// if one exists. Real environment variables win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_PATH", "bankrecon.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("SUGGESTION_CACHE_TTL", "30s")
	v.SetDefault("RECONCILE_MAX_RETRIES", 3)
	v.SetDefault("MAX_UPLOAD_BYTES", 32<<20)
	v.SetDefault("IMPORT_CONCURRENCY", 4)
	v.SetDefault("SEED_BOOKINGS_PATH", "testdata/bookings.json")
	v.AutomaticEnv()

	ttl, err := time.ParseDuration(v.GetString("SUGGESTION_CACHE_TTL"))
	if err != nil {
		return nil, fmt.Errorf("SUGGESTION_CACHE_TTL: %w", err)
	}

	cfg := &Config{
		Port:                v.GetString("PORT"),
		DBPath:              v.GetString("DB_PATH"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           v.GetString("LOG_FORMAT"),
		SuggestionCacheTTL:  ttl,
		ReconcileMaxRetries: v.GetInt("RECONCILE_MAX_RETRIES"),
		MaxUploadBytes:      v.GetInt64("MAX_UPLOAD_BYTES"),
		ImportConcurrency:   v.GetInt("IMPORT_CONCURRENCY"),
		SeedBookingsPath:    v.GetString("SEED_BOOKINGS_PATH"),
	}

	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be console or json, got %q", cfg.LogFormat)
	}
	if cfg.SuggestionCacheTTL < 0 {
		return nil, fmt.Errorf("SUGGESTION_CACHE_TTL must not be negative")
	}
	if cfg.ReconcileMaxRetries < 0 {
		return nil, fmt.Errorf("RECONCILE_MAX_RETRIES must not be negative")
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.ImportConcurrency < 1 {
		cfg.ImportConcurrency = 1
	}
	return cfg, nil
}
