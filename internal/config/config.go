package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Persisted-query registry backends.
const (
	APQStoreMemory   = "memory"
	APQStoreRedis    = "redis"
	APQStorePostgres = "postgres"
)

// Config holds gateway settings loaded from environment variables.
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	LogFormat   string

	UpstreamURL    string
	TrustedProxies []string

	MaxDepth      int
	MaxComplexity int

	PersistedQueriesOnly bool
	APQStore             string
	DatabaseURL          string
	RedisAddr            string

	RateLimitMax           int
	RateLimitWindow        time.Duration
	RateLimitMaxStoreSize  int
	RateLimitSweepInterval time.Duration

	AuditKafkaBrokers []string
	AuditKafkaTopic   string

	ConcurrencyLimit int
	ShutdownTimeout  time.Duration
}

// IsProduction reports whether the gateway runs in a production-like environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AuditEnabled reports whether admission audit publishing is configured.
func (c *Config) AuditEnabled() bool {
	return len(c.AuditKafkaBrokers) > 0
}

// Load reads configuration from environment variables and returns it,
// or an error if required values are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           envOrDefault("PORT", "8080"),
		Environment:    envOrDefault("ENVIRONMENT", "development"),
		LogLevel:       envOrDefault("LOG_LEVEL", "info"),
		LogFormat:      envOrDefault("LOG_FORMAT", "json"),
		UpstreamURL:    os.Getenv("UPSTREAM_URL"),
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		APQStore:       envOrDefault("APQ_STORE", APQStoreMemory),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),

		AuditKafkaBrokers: splitList(os.Getenv("AUDIT_KAFKA_BROKERS")),
		AuditKafkaTopic:   envOrDefault("AUDIT_KAFKA_TOPIC", "admission-audit"),
	}

	var err error
	if cfg.MaxDepth, err = envInt("GRAPHQL_MAX_DEPTH", 10); err != nil {
		return nil, err
	}
	if cfg.MaxComplexity, err = envInt("GRAPHQL_MAX_COMPLEXITY", 1000); err != nil {
		return nil, err
	}
	// Default-safe posture: once an application has shipped its known query
	// set, production gateways accept only persisted queries.
	if cfg.PersistedQueriesOnly, err = envBool("PERSISTED_QUERIES_ONLY", cfg.IsProduction()); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = envInt("RATE_LIMIT_MAX", 120); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = envDuration("RATE_LIMIT_WINDOW", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitMaxStoreSize, err = envInt("RATE_LIMIT_MAX_STORE_SIZE", 10000); err != nil {
		return nil, err
	}
	if cfg.RateLimitSweepInterval, err = envDuration("RATE_LIMIT_SWEEP_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	// CONCURRENCY_LIMIT=0 (or unset) disables the gate, so it only goes
	// through envInt's positivity check when explicitly set.
	if v := os.Getenv("CONCURRENCY_LIMIT"); v != "" {
		if cfg.ConcurrencyLimit, err = envInt("CONCURRENCY_LIMIT", 0); err != nil {
			return nil, err
		}
	}

	if cfg.UpstreamURL == "" {
		return nil, errors.New("UPSTREAM_URL is required")
	}

	switch cfg.APQStore {
	case APQStoreMemory:
	case APQStoreRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("REDIS_ADDR is required when APQ_STORE=redis")
		}
	case APQStorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when APQ_STORE=postgres")
		}
	default:
		return nil, fmt.Errorf("APQ_STORE must be one of memory, redis, postgres; got %q", cfg.APQStore)
	}

	return cfg, nil
}
