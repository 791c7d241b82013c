// Package config provides configuration management for the comment and notification pipeline.
// It loads configuration from environment variables and .env files.
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
	Admission AdmissionConfig
	Digest    DigestConfig
	Mail      MailConfig
	Cache     CacheConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
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
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration.
// The abuse event log is optional and only written when Enabled is set.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// AdmissionConfig holds comment throttling and abuse detection parameters
type AdmissionConfig struct {
	CommentInterval      time.Duration // minimum gap between two comments of one account
	AbuseWindow          time.Duration // window in which distinct authors per IP are counted
	AbuseDistinctAuthors int           // distinct authors per IP that trigger a freeze
	FreezeDuration       time.Duration
}

// DigestConfig holds digest scheduler configuration
type DigestConfig struct {
	TickInterval time.Duration
	ErrorBackoff time.Duration
	SendTimeout  time.Duration
	HourlyWindow time.Duration
	DailyWindow  time.Duration
	ClaimTTL     time.Duration
}

// MailConfig holds SMTP configuration. An empty host selects the logging sender.
type MailConfig struct {
	SMTPHost        string
	SMTPPort        string
	Username        string
	Password        string
	From            string
	RatePerSecond   int
	BreakerFailures int
	BreakerTimeout  time.Duration
	BaseURL         string
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	SettingsTTL time.Duration
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
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestsPerSec:  getEnvAsInt("SERVER_REQUESTS_PER_SEC", 20),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "wiki"),
				User:           getEnv("POSTGRES_USER", "wiki"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "wiki_audit"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Admission: AdmissionConfig{
			CommentInterval:      getEnvAsDuration("COMMENT_INTERVAL", 30*time.Second),
			AbuseWindow:          getEnvAsDuration("ABUSE_WINDOW", 30*time.Second),
			AbuseDistinctAuthors: getEnvAsInt("ABUSE_DISTINCT_AUTHORS", 3),
			FreezeDuration:       getEnvAsDuration("ABUSE_FREEZE_DURATION", 24*time.Hour),
		},
		Digest: DigestConfig{
			TickInterval: getEnvAsDuration("DIGEST_TICK_INTERVAL", time.Minute),
			ErrorBackoff: getEnvAsDuration("DIGEST_ERROR_BACKOFF", 5*time.Minute),
			SendTimeout:  getEnvAsDuration("DIGEST_SEND_TIMEOUT", 5*time.Second),
			HourlyWindow: getEnvAsDuration("DIGEST_HOURLY_WINDOW", time.Hour),
			DailyWindow:  getEnvAsDuration("DIGEST_DAILY_WINDOW", 24*time.Hour),
			ClaimTTL:     getEnvAsDuration("DIGEST_CLAIM_TTL", 10*time.Minute),
		},
		Mail: MailConfig{
			SMTPHost:        getEnv("SMTP_HOST", ""),
			SMTPPort:        getEnv("SMTP_PORT", "587"),
			Username:        getEnv("SMTP_USERNAME", ""),
			Password:        getEnv("SMTP_PASSWORD", ""),
			From:            getEnv("MAIL_FROM", "wiki@localhost"),
			RatePerSecond:   getEnvAsInt("MAIL_RATE_PER_SECOND", 5),
			BreakerFailures: getEnvAsInt("MAIL_BREAKER_FAILURES", 5),
			BreakerTimeout:  getEnvAsDuration("MAIL_BREAKER_TIMEOUT", time.Minute),
			BaseURL:         getEnv("WIKI_BASE_URL", "http://localhost:3000"),
		},
		Cache: CacheConfig{
			SettingsTTL: getEnvAsDuration("SETTINGS_CACHE_TTL", 5*time.Minute),
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

// getEnvAsBool gets an environment variable as a boolean with a default value
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
