// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Market timezone must resolve on hosts without a zoneinfo database

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for all databases (always absolute)
	LogLevel       string
	Port           int
	DevMode        bool
	MarketFeedURL  string // Empty = built-in static basket
	MarketTimezone string
	BaseCurrency   string
	InitialBalance float64

	MarketClosedDates     []string // Extra non-trading days (religious holidays), "2006-01-02"
	RefreshOpenInterval   time.Duration
	RefreshClosedInterval time.Duration
	FeedTimeout           time.Duration
	Backup                *BackupConfig
}

// BackupConfig holds object storage settings for ledger backups
type BackupConfig struct {
	Bucket    string
	Endpoint  string // Optional, for S3-compatible stores
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	Schedule  string // cron expression (with seconds)
	Retention int    // Number of backups to keep
}

// Enabled reports whether backups have a destination configured
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PAPERTRADER_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("PORT", 8001),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		MarketFeedURL:         getEnv("MARKET_FEED_URL", ""),
		MarketTimezone:        getEnv("MARKET_TIMEZONE", "Europe/Istanbul"),
		MarketClosedDates:     getEnvAsList("MARKET_CLOSED_DATES"),
		BaseCurrency:          strings.ToUpper(getEnv("BASE_CURRENCY", "TRY")),
		InitialBalance:        getEnvAsFloat("INITIAL_BALANCE", 100000),
		RefreshOpenInterval:   getEnvAsDuration("REFRESH_OPEN_INTERVAL", 15*time.Minute),
		RefreshClosedInterval: getEnvAsDuration("REFRESH_CLOSED_INTERVAL", 60*time.Minute),
		FeedTimeout:           getEnvAsDuration("MARKET_FEED_TIMEOUT", 10*time.Second),
		Backup:                loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.InitialBalance <= 0 {
		return fmt.Errorf("INITIAL_BALANCE must be positive, got %v", c.InitialBalance)
	}
	if c.RefreshOpenInterval <= 0 || c.RefreshClosedInterval <= 0 {
		return fmt.Errorf("refresh intervals must be positive (open=%s, closed=%s)",
			c.RefreshOpenInterval, c.RefreshClosedInterval)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		return fmt.Errorf("invalid MARKET_TIMEZONE %q: %w", c.MarketTimezone, err)
	}
	if c.Backup.Enabled() && (c.Backup.AccessKey == "") != (c.Backup.SecretKey == "") {
		return fmt.Errorf("backup access key and secret key must be set together")
	}
	return nil
}

// Location returns the market timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.MarketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Bucket:    getEnv("BACKUP_BUCKET", ""),
		Endpoint:  getEnv("BACKUP_ENDPOINT", ""),
		Region:    getEnv("BACKUP_REGION", "auto"),
		AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		Prefix:    getEnv("BACKUP_PREFIX", "papertrader"),
		Schedule:  getEnv("BACKUP_SCHEDULE", "0 30 3 * * *"), // 03:30 daily
		Retention: getEnvAsInt("BACKUP_RETENTION", 14),
	}
}
