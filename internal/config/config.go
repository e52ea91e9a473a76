// Package config loads service configuration from the environment. A local
// .env file is honoured in development; real deployments set variables
// directly. Values are read once at startup and never mutated.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved service configuration.
type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseURL string

	SecretKey string
	Issuer    string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	LockoutThreshold int
	LockoutDuration  time.Duration

	LivePermissionChecks   bool
	LiveSubscriptionChecks bool

	RateLimitPerSecond float64
	RateLimitBurst     int

	MigrationsDir string
	SeedsDir      string
}

// Load reads the environment, applying defaults for everything except the
// signing secret and database URL, which have no safe default.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set by the platform.
	_ = godotenv.Load()

	cfg := &Config{
		Environment:            getEnv("AUTHGHOST_ENV", "production"),
		HTTPAddr:               getEnv("AUTHGHOST_HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("AUTHGHOST_PG_DSN", ""),
		SecretKey:              getEnv("AUTHGHOST_SECRET_KEY", ""),
		Issuer:                 getEnv("AUTHGHOST_ISSUER", "authghost"),
		AccessTokenTTL:         getDuration("AUTHGHOST_ACCESS_TTL", 30*time.Minute),
		RefreshTokenTTL:        getDuration("AUTHGHOST_REFRESH_TTL", 168*time.Hour),
		LockoutThreshold:       getInt("AUTHGHOST_LOCKOUT_THRESHOLD", 5),
		LockoutDuration:        getDuration("AUTHGHOST_LOCKOUT_DURATION", 30*time.Minute),
		LivePermissionChecks:   getBool("AUTHGHOST_LIVE_PERMISSIONS", false),
		LiveSubscriptionChecks: getBool("AUTHGHOST_LIVE_SUBSCRIPTIONS", false),
		RateLimitPerSecond:     getFloat("AUTHGHOST_RATE_LIMIT_RPS", 20),
		RateLimitBurst:         getInt("AUTHGHOST_RATE_LIMIT_BURST", 40),
		MigrationsDir:          getEnv("AUTHGHOST_MIGRATIONS_DIR", "ops/migrations/sql"),
		SeedsDir:               getEnv("AUTHGHOST_SEEDS_DIR", "ops/migrations/seeds"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: AUTHGHOST_PG_DSN is required")
	}
	if len(cfg.SecretKey) < 32 {
		return nil, fmt.Errorf("config: AUTHGHOST_SECRET_KEY must be at least 32 characters")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return nil, fmt.Errorf("config: refresh TTL must exceed access TTL")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}
