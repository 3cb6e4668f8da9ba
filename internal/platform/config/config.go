package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process configuration, loaded from environment variables.
type Config struct {
	Env      string
	HTTPPort string

	// StorageBackend selects the activity store: "memory" or "postgres".
	StorageBackend string
	DatabaseURL    string

	// IdempotencyBackend selects the replay ledger: "storage" (same
	// backend as the activity store), "redis", or "memory".
	IdempotencyBackend string
	RedisAddr          string
	IdempotencyTTL     time.Duration

	LogLevel string

	RetryAttempts  int
	RetryBaseDelay time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPPort:           getEnv("PORT", "8080"),
		StorageBackend:     getEnv("STORAGE_BACKEND", "memory"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		IdempotencyBackend: getEnv("IDEMPOTENCY_BACKEND", "storage"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetryAttempts, err = getInt("STORE_RETRY_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = getDuration("STORE_RETRY_BASE_DELAY", 10*time.Millisecond); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	switch cfg.IdempotencyBackend {
	case "storage", "memory", "redis":
	default:
		return nil, fmt.Errorf("unknown IDEMPOTENCY_BACKEND %q", cfg.IdempotencyBackend)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
