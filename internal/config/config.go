// Package config provides configuration management for the slot automator.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// MinKDFIterations is the lowest PBKDF2 iteration count accepted for the wallet blob
const MinKDFIterations = 100000

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Chain      ChainConfig
	Automation AutomationConfig
	Security   SecurityConfig
	Storage    StorageConfig
	Database   DatabaseConfig
	Ledger     LedgerConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       int // requests per minute per client
}

// ChainConfig holds relay, oracle and transaction parameters
type ChainConfig struct {
	RelayURL        string
	VerificationURL string
	ChainID         *big.Int
	GasPrice        *big.Int // wei
	GasLimit        uint64
	TxValue         decimal.Decimal // native units attached to every play call
	ContractAddress string
	RequestTimeout  time.Duration
}

// AutomationConfig holds betting loop defaults and worker intervals
type AutomationConfig struct {
	DefaultRate          int
	DefaultBetSize       decimal.Decimal
	MinRate              int
	MaxRate              int
	VerificationInterval time.Duration
	BalanceInterval      time.Duration
	HistoryCapacity      int
}

// SecurityConfig holds wallet encryption settings
type SecurityConfig struct {
	KDFIterations int
}

// StorageConfig selects where encrypted wallets and history are persisted
type StorageConfig struct {
	Backend   string // badger, redis or postgres
	BadgerDir string // empty keeps badger in memory
	KeyPrefix string
	// ConnectAttempts bounds how often startup dials a networked backend
	ConnectAttempts int
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

// LedgerConfig toggles the ClickHouse bet ledger
type LedgerConfig struct {
	Enabled bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Storage backends
const (
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	txValue, err := getEnvAsDecimal("CHAIN_TX_VALUE", "0.012520408163265306")
	if err != nil {
		return nil, err
	}
	defaultBet, err := getEnvAsDecimal("AUTOMATION_DEFAULT_BET", "0.012")
	if err != nil {
		return nil, err
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "127.0.0.1"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RateLimit:       getEnvAsInt("SERVER_RATE_LIMIT", 600),
		},
		Chain: ChainConfig{
			RelayURL:        getEnv("CHAIN_RELAY_URL", "http://localhost:3500/rpc"),
			VerificationURL: getEnv("CHAIN_VERIFICATION_URL", "http://localhost:3500/calculate-hash"),
			ChainID:         new(big.Int).SetUint64(getEnvAsUint64("CHAIN_ID", 2020)),
			GasPrice:        new(big.Int).Mul(new(big.Int).SetUint64(getEnvAsUint64("CHAIN_GAS_PRICE_GWEI", 25)), big.NewInt(1e9)),
			GasLimit:        getEnvAsUint64("CHAIN_GAS_LIMIT", 800000),
			TxValue:         txValue,
			ContractAddress: getEnv("CHAIN_SLOT_CONTRACT", ""),
			RequestTimeout:  getEnvAsDuration("CHAIN_REQUEST_TIMEOUT", 15*time.Second),
		},
		Automation: AutomationConfig{
			DefaultRate:          getEnvAsInt("AUTOMATION_DEFAULT_RATE", 10),
			DefaultBetSize:       defaultBet,
			MinRate:              getEnvAsInt("AUTOMATION_MIN_RATE", 1),
			MaxRate:              getEnvAsInt("AUTOMATION_MAX_RATE", 30),
			VerificationInterval: getEnvAsDuration("VERIFICATION_INTERVAL", time.Second),
			BalanceInterval:      getEnvAsDuration("BALANCE_POLL_INTERVAL", 3*time.Second),
			HistoryCapacity:      getEnvAsInt("HISTORY_CAPACITY", 100),
		},
		Security: SecurityConfig{
			KDFIterations: getEnvAsInt("KDF_ITERATIONS", MinKDFIterations),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnv("STORAGE_BACKEND", BackendBadger)),
			BadgerDir: getEnv("BADGER_DIR", "./data"),
			KeyPrefix: getEnv("STORAGE_KEY_PREFIX", "qupaca"),

			ConnectAttempts: getEnvAsInt("STORAGE_CONNECT_ATTEMPTS", 5),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "slot_automator"),
				User:           getEnv("POSTGRES_USER", "automator"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "slot_automator"),
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
		Ledger: LedgerConfig{
			Enabled: getEnvAsBool("LEDGER_ENABLED", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate checks every section needed by the server
func (c *Config) Validate() error {
	if err := c.Chain.Validate(); err != nil {
		return err
	}
	if err := c.Automation.Validate(); err != nil {
		return err
	}
	if err := c.Security.Validate(); err != nil {
		return err
	}
	return c.Storage.Validate()
}

// Validate checks relay and transaction parameters
func (c ChainConfig) Validate() error {
	if strings.TrimSpace(c.RelayURL) == "" {
		return fmt.Errorf("CHAIN_RELAY_URL is required")
	}
	if strings.TrimSpace(c.VerificationURL) == "" {
		return fmt.Errorf("CHAIN_VERIFICATION_URL is required")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("CHAIN_SLOT_CONTRACT must be a hex address, got %q", c.ContractAddress)
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive")
	}
	if c.GasLimit == 0 {
		return fmt.Errorf("CHAIN_GAS_LIMIT must be positive")
	}
	if c.TxValue.IsNegative() {
		return fmt.Errorf("CHAIN_TX_VALUE must not be negative")
	}
	return nil
}

// Validate checks the rate bounds and default bet
func (c AutomationConfig) Validate() error {
	if c.MinRate < 1 || c.MaxRate > 30 || c.MinRate > c.MaxRate {
		return fmt.Errorf("automation rate bounds must lie within 1..30, got %d..%d", c.MinRate, c.MaxRate)
	}
	if c.DefaultRate < c.MinRate || c.DefaultRate > c.MaxRate {
		return fmt.Errorf("AUTOMATION_DEFAULT_RATE %d outside %d..%d", c.DefaultRate, c.MinRate, c.MaxRate)
	}
	if !c.DefaultBetSize.IsPositive() {
		return fmt.Errorf("AUTOMATION_DEFAULT_BET must be positive")
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("HISTORY_CAPACITY must be positive")
	}
	if c.VerificationInterval <= 0 || c.BalanceInterval <= 0 {
		return fmt.Errorf("worker intervals must be positive")
	}
	return nil
}

// Validate enforces the key derivation floor
func (c SecurityConfig) Validate() error {
	if c.KDFIterations < MinKDFIterations {
		return fmt.Errorf("KDF_ITERATIONS must be at least %d, got %d", MinKDFIterations, c.KDFIterations)
	}
	return nil
}

// Validate checks the storage backend name
func (c StorageConfig) Validate() error {
	switch c.Backend {
	case BackendBadger, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Backend)
	}
	if strings.TrimSpace(c.KeyPrefix) == "" {
		return fmt.Errorf("STORAGE_KEY_PREFIX is required")
	}
	return nil
}

// PostgresDSN builds a pgx connection string
func (c PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.MaxConnections)
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

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDecimal parses an exact amount; a malformed value is an error rather than a silent default
func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
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
