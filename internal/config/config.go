// Package config collects runtime settings from CARTWISE_* environment
// variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/cartwise/internal/currency"
)

const envPrefix = "CARTWISE_"

type Config struct {
	// HTTP server
	Port string

	// Database
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Display. Currency is the default for workspaces created without one.
	Currency string
	Locale   string

	// Receipt extraction service
	ExtractURL     string
	ExtractAPIKey  string
	ExtractTimeout time.Duration

	// Receipt image storage (S3-compatible). Empty bucket keeps images in memory.
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool

	// Domain events. Empty URL disables publishing.
	AMQPURL      string
	AMQPExchange string

	// Encrypted database backups to the S3 bucket. Zero interval disables them.
	BackupInterval   time.Duration
	BackupRetention  time.Duration
	BackupPassphrase string

	// Analytics dashboard cache entries
	CacheSize int

	// Receipt uploads allowed per client per minute
	ReceiptRateLimit int
}

func Load() *Config {
	return &Config{
		Port:   getEnv("PORT", "8080"),
		DBPath: getEnv("DB_PATH", "cartwise.db"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		Currency: getEnv("CURRENCY", currency.DefaultCode),
		Locale:   getEnv("LOCALE", "en"),

		ExtractURL:     getEnv("EXTRACT_URL", ""),
		ExtractAPIKey:  getEnv("EXTRACT_API_KEY", ""),
		ExtractTimeout: getEnvDuration("EXTRACT_TIMEOUT", 60*time.Second),

		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3PathStyle: getEnvBool("S3_PATH_STYLE", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "cartwise"),

		BackupInterval:   getEnvDuration("BACKUP_INTERVAL", 0),
		BackupRetention:  getEnvDuration("BACKUP_RETENTION", 30*24*time.Hour),
		BackupPassphrase: getEnv("BACKUP_PASSPHRASE", ""),

		CacheSize: getEnvInt("CACHE_SIZE", 128),

		ReceiptRateLimit: getEnvInt("RECEIPT_RATE_LIMIT", 10),
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		errs = append(errs, "database path cannot be empty")
	} else if c.DBPath != ":memory:" {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if !currency.ValidCode(c.Currency) {
		errs = append(errs, fmt.Sprintf("invalid currency '%s': must be an ISO 4217 code", c.Currency))
	}

	if c.ExtractURL != "" {
		if u, err := url.Parse(c.ExtractURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("invalid extraction URL '%s': must be http or https", c.ExtractURL))
		}
	}
	if c.ExtractTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("invalid extraction timeout %v: must be positive", c.ExtractTimeout))
	}

	if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
		errs = append(errs, "S3 access key and secret key must be set together")
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.BackupInterval < 0 {
		errs = append(errs, fmt.Sprintf("invalid backup interval %v: must not be negative", c.BackupInterval))
	}
	if c.BackupInterval > 0 {
		if c.S3Bucket == "" {
			errs = append(errs, "backups require an S3 bucket")
		}
		if len(c.BackupPassphrase) < 12 {
			errs = append(errs, "backup passphrase must be at least 12 characters")
		}
	}
	if c.BackupRetention < 0 {
		errs = append(errs, fmt.Sprintf("invalid backup retention %v: must not be negative", c.BackupRetention))
	}

	if c.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.ReceiptRateLimit < 1 {
		errs = append(errs, fmt.Sprintf("invalid receipt rate limit %d: must be at least 1", c.ReceiptRateLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(envPrefix + key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(envPrefix + key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
