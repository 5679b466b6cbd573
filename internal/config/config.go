package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Secrets  SecretsConfig
	Webhooks WebhooksConfig
	Plans    PlansConfig
	Sweep    SweepConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	MetricsPort     int
	ShutdownTimeout time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// RedisConfig holds Redis configuration for the replay guard
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SecretsConfig selects the secret backend and its settings.
// Backend is one of "env", "aws", "vault".
type SecretsConfig struct {
	Backend string

	AWSRegion   string
	AWSProfile  string
	AWSEndpoint string

	VaultAddress   string
	VaultToken     string
	VaultMountPath string
	VaultKVVersion string
}

// WebhooksConfig names the signing secret for each gateway and tunes the
// replay guard.
type WebhooksConfig struct {
	PaystackSecretName string
	AlatPaySecretName  string
	CoralPaySecretName string
	CredoSecretName    string
	ReplayTTL          time.Duration
}

// PlansConfig maps payment amounts to plans for gateways whose payloads
// carry no metadata. Amounts are in major currency units.
type PlansConfig struct {
	Currency      string
	DailyAmount   string
	WeeklyAmount  string
	MonthlyAmount string
}

// SweepConfig tunes the subscription expiry sweep
type SweepConfig struct {
	Interval time.Duration
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			RateLimitRPS:    getEnvAsFloat("RATE_LIMIT_RPS", 50),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 100),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "billing_service"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Secrets: SecretsConfig{
			Backend:        getEnv("SECRETS_BACKEND", "env"),
			AWSRegion:      getEnv("AWS_REGION", "eu-west-1"),
			AWSProfile:     getEnv("AWS_PROFILE", ""),
			AWSEndpoint:    getEnv("AWS_SECRETS_ENDPOINT", ""),
			VaultAddress:   getEnv("VAULT_ADDR", ""),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultMountPath: getEnv("VAULT_MOUNT_PATH", "secret"),
			VaultKVVersion: getEnv("VAULT_KV_VERSION", "v2"),
		},
		Webhooks: WebhooksConfig{
			PaystackSecretName: getEnv("PAYSTACK_SECRET_NAME", "webhooks/paystack/hmac"),
			AlatPaySecretName:  getEnv("ALATPAY_SECRET_NAME", "webhooks/alatpay/hmac"),
			CoralPaySecretName: getEnv("CORALPAY_SECRET_NAME", "webhooks/coralpay/hmac"),
			CredoSecretName:    getEnv("CREDO_SECRET_NAME", "webhooks/credo/hmac"),
			ReplayTTL:          getEnvAsDuration("REPLAY_GUARD_TTL", 5*time.Minute),
		},
		Plans: PlansConfig{
			Currency:      getEnv("PLAN_CURRENCY", "NGN"),
			DailyAmount:   getEnv("PLAN_DAILY_AMOUNT", "500"),
			WeeklyAmount:  getEnv("PLAN_WEEKLY_AMOUNT", "1000"),
			MonthlyAmount: getEnv("PLAN_MONTHLY_AMOUNT", "2100"),
		},
		Sweep: SweepConfig{
			Interval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", time.Hour),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// Validate required fields
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	switch cfg.Secrets.Backend {
	case "env", "aws":
	case "vault":
		if cfg.Secrets.VaultAddress == "" {
			return nil, fmt.Errorf("VAULT_ADDR is required for the vault secrets backend")
		}
	default:
		return nil, fmt.Errorf("unknown SECRETS_BACKEND: %s", cfg.Secrets.Backend)
	}

	return cfg, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
