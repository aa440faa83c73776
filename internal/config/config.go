// Package config provides configuration management for the fund ledger
// service. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Chain     ChainConfig
	Protocol  ProtocolConfig
	Cache     CacheConfig
	Sweeper   SweeperConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
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

// ChainConfig holds the stablecoin chain connection configuration. When
// RPCURL is empty the service runs in offline custody mode and settles
// stablecoin legs through the local custody ledger instead of an ERC-20
// contract.
type ChainConfig struct {
	RPCURL     string
	ChainID    int64
	Stablecoin string
	// PermitName and PermitVersion form the stablecoin's EIP-712 domain.
	PermitName    string
	PermitVersion string
	Confirmations int
	// OperatorKey is the hex private key used to sign transferFrom and
	// payout transactions. Required only when RPCURL is set.
	OperatorKey string
}

// ProtocolConfig holds protocol-wide defaults applied to new funds unless
// the creation request overrides them.
type ProtocolConfig struct {
	MinInvestmentUsd       int64
	LockupPeriod           time.Duration
	RedemptionNoticePeriod time.Duration
	FeeSweepInterval       time.Duration
	NavMarkInterval        time.Duration
}

// CacheConfig holds NAV cache configuration
type CacheConfig struct {
	NavTTL time.Duration
}

// SweeperConfig holds the fee sweep scheduler configuration
type SweeperConfig struct {
	// Schedule is a cron expression; empty disables the sweeper.
	Schedule string
	// BatchSize bounds investments swept per fund per run.
	BatchSize int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	FreeTier    int
	BasicTier   int
	PremiumTier int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "fund_ledger"),
				User:           getEnv("POSTGRES_USER", "fund"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 100),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "fund_ledger"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Chain: ChainConfig{
			RPCURL:        getEnv("CHAIN_RPC_URL", ""),
			ChainID:       int64(getEnvAsInt("CHAIN_ID", 1)),
			Stablecoin:    getEnv("STABLECOIN_ADDRESS", ""),
			PermitName:    getEnv("STABLECOIN_PERMIT_NAME", "USD Coin"),
			PermitVersion: getEnv("STABLECOIN_PERMIT_VERSION", "2"),
			Confirmations: getEnvAsInt("CHAIN_CONFIRMATIONS", 3),
			OperatorKey:   getEnv("CHAIN_OPERATOR_KEY", ""),
		},
		Protocol: ProtocolConfig{
			MinInvestmentUsd:       int64(getEnvAsInt("PROTOCOL_MIN_INVESTMENT_USD", 100)),
			LockupPeriod:           getEnvAsDuration("PROTOCOL_LOCKUP_PERIOD", 0),
			RedemptionNoticePeriod: getEnvAsDuration("PROTOCOL_REDEMPTION_NOTICE_PERIOD", 0),
			FeeSweepInterval:       getEnvAsDuration("PROTOCOL_FEE_SWEEP_INTERVAL", 24*time.Hour),
			NavMarkInterval:        getEnvAsDuration("PROTOCOL_NAV_MARK_INTERVAL", time.Hour),
		},
		Cache: CacheConfig{
			NavTTL: getEnvAsDuration("CACHE_NAV_TTL", 20*time.Second),
		},
		Sweeper: SweeperConfig{
			Schedule:  getEnv("SWEEPER_SCHEDULE", "0 0 * * *"),
			BatchSize: getEnvAsInt("SWEEPER_BATCH_SIZE", 100),
		},
		RateLimit: RateLimitConfig{
			FreeTier:    getEnvAsInt("RATE_LIMIT_FREE_TIER", 1000),
			BasicTier:   getEnvAsInt("RATE_LIMIT_BASIC_TIER", 10000),
			PremiumTier: getEnvAsInt("RATE_LIMIT_PREMIUM_TIER", 100000),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
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
