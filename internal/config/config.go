package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the rotation service.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Auth          AuthConfig
	Scheduler     SchedulerConfig
	Collaborators CollaboratorConfig
	Logging       LoggingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
}

// DatabaseConfig holds postgres configuration.
type DatabaseConfig struct {
	URL                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
	SlowQueryThreshold time.Duration
	MigrationsPath     string
}

// CacheConfig holds cache layer configuration.
type CacheConfig struct {
	Provider       string // "memory" or "redis"
	RedisURL       string
	DefaultTTL     time.Duration
	LeaderboardTTL time.Duration
}

// AuthConfig holds bearer-token verification settings. Token issuance lives
// in the platform's identity service; this service only verifies JWTs.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// SchedulerConfig holds the cron specs for the periodic triggers. The three
// hourly jobs run at different minute offsets so sweeps do not contend for
// the same rows at the same instant.
type SchedulerConfig struct {
	Enabled          bool
	BalanceCheckSpec string
	TimeoutSweepSpec string
	SettlementSpec   string
	DailyStatsSpec   string
}

// CollaboratorConfig holds endpoints for the best-effort external services.
type CollaboratorConfig struct {
	LedgerURL       string
	TransferURL     string
	RequestTimeout  time.Duration
	MaxRetryElapsed time.Duration
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, with .env support for
// development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("GO_ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "9000"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Environment:     env,
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			GracefulTimeout: getDurationEnv("GRACEFUL_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:                os.Getenv("DATABASE_URL"),
			MaxOpenConns:       getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:       getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime:    getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime:    getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			SlowQueryThreshold: getDurationEnv("DB_SLOW_QUERY_THRESHOLD", 100*time.Millisecond),
			MigrationsPath:     getEnv("DB_MIGRATIONS_PATH", "migrations"),
		},
		Cache: CacheConfig{
			Provider:       getEnv("CACHE_PROVIDER", "memory"),
			RedisURL:       getEnv("REDIS_URL", ""),
			DefaultTTL:     getDurationEnv("CACHE_DEFAULT_TTL", 5*time.Minute),
			LeaderboardTTL: getDurationEnv("CACHE_LEADERBOARD_TTL", 10*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			JWTIssuer: getEnv("JWT_ISSUER", "modrota"),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getBoolEnv("SCHEDULER_ENABLED", true),
			BalanceCheckSpec: getEnv("SCHEDULER_BALANCE_SPEC", "0 * * * *"),
			TimeoutSweepSpec: getEnv("SCHEDULER_TIMEOUT_SPEC", "20 * * * *"),
			SettlementSpec:   getEnv("SCHEDULER_SETTLEMENT_SPEC", "40 * * * *"),
			DailyStatsSpec:   getEnv("SCHEDULER_STATS_SPEC", "10 2 * * *"),
		},
		Collaborators: CollaboratorConfig{
			LedgerURL:       getEnv("LEDGER_URL", ""),
			TransferURL:     getEnv("TRANSFER_URL", ""),
			RequestTimeout:  getDurationEnv("COLLABORATOR_TIMEOUT", 5*time.Second),
			MaxRetryElapsed: getDurationEnv("COLLABORATOR_MAX_RETRY", 2*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Server.Environment == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.Cache.Provider == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_PROVIDER=redis")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ===============================
// ENV HELPERS
// ===============================

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
