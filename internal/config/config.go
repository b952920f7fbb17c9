// Package config provides configuration management for the airdrop export service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Export   ExportConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string
	Host         string
	RequestsPerS int // Per-client request rate for the API
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the postgres:// connection URL used by migrations
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig holds the target chain and contract configuration
type ChainConfig struct {
	RPCPrimary      string
	RPCSecondary    string
	ChainID         int64 // 0 means read it from the node
	AirdropContract string
	// AdminPrivateKey is the hex signing key. An empty value is not a load error;
	// every export cycle reports it as a configuration error instead.
	AdminPrivateKey string
}

// ExportConfig holds export scheduler configuration
type ExportConfig struct {
	Interval           time.Duration
	BatchSize          int
	ConfirmTimeout     time.Duration
	LockTTL            time.Duration
	IsolatePoison      bool
	BreakerMaxFailures int // 0 disables the submission circuit breaker
	BreakerCooldown    time.Duration
	AuditEnabled       bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// CycleLockMargin is how long a cycle may hold the cycle lock beyond the
// confirmation wait: selection, sponsor lookups, marking (up to 30s) and the audit write (up to 10s).
const CycleLockMargin = 2 * time.Minute

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			RequestsPerS: getEnvAsInt("SERVER_REQUESTS_PER_SECOND", 20),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "memes_airdrop"),
				User:           getEnv("POSTGRES_USER", "airdrop"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "memes_airdrop"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
			},
		},
		Chain: ChainConfig{
			RPCPrimary:      getEnv("CHAIN_RPC_PRIMARY", ""),
			RPCSecondary:    getEnv("CHAIN_RPC_SECONDARY", ""),
			ChainID:         int64(getEnvAsInt("CHAIN_ID", 0)),
			AirdropContract: getEnv("AIRDROP_CONTRACT_ADDRESS", ""),
			AdminPrivateKey: getEnv("ADMIN_PRIVATE_KEY", ""),
		},
		Export: ExportConfig{
			Interval:           getEnvAsDuration("EXPORT_INTERVAL", 60*time.Second),
			BatchSize:          getEnvAsInt("EXPORT_BATCH_SIZE", 100),
			ConfirmTimeout:     getEnvAsDuration("EXPORT_CONFIRM_TIMEOUT", 5*time.Minute),
			LockTTL:            getEnvAsDuration("EXPORT_LOCK_TTL", 10*time.Minute),
			IsolatePoison:      getEnvAsBool("EXPORT_ISOLATE_POISON", false),
			BreakerMaxFailures: getEnvAsInt("EXPORT_BREAKER_MAX_FAILURES", 0),
			BreakerCooldown:    getEnvAsDuration("EXPORT_BREAKER_COOLDOWN", 10*time.Minute),
			AuditEnabled:       getEnvAsBool("EXPORT_AUDIT_ENABLED", true),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate checks the settings the export scheduler cannot run without
func (c *Config) Validate() error {
	if c.Export.BatchSize <= 0 {
		return fmt.Errorf("EXPORT_BATCH_SIZE must be positive, got %d", c.Export.BatchSize)
	}
	if c.Export.Interval <= 0 {
		return fmt.Errorf("EXPORT_INTERVAL must be positive, got %v", c.Export.Interval)
	}
	if c.Export.ConfirmTimeout <= 0 {
		return fmt.Errorf("EXPORT_CONFIRM_TIMEOUT must be positive, got %v", c.Export.ConfirmTimeout)
	}
	// The lock must outlive a whole cycle or a second replica could resubmit unmarked rows
	if minTTL := c.Export.ConfirmTimeout + CycleLockMargin; c.Export.LockTTL < minTTL {
		return fmt.Errorf("EXPORT_LOCK_TTL (%v) must be at least EXPORT_CONFIRM_TIMEOUT + %v (%v)",
			c.Export.LockTTL, CycleLockMargin, minTTL)
	}
	if c.Chain.RPCPrimary == "" {
		return fmt.Errorf("CHAIN_RPC_PRIMARY is required")
	}
	if !common.IsHexAddress(c.Chain.AirdropContract) {
		return fmt.Errorf("AIRDROP_CONTRACT_ADDRESS is not a valid address: %q", c.Chain.AirdropContract)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
