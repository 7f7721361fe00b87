package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	DBDir string

	// Logging
	LogLevel string

	// AMQP (empty URL disables cost events)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Query cache
	QueryCacheSize int
	QueryCacheTTL  time.Duration
}

func Load() *Config {
	cfg := &Config{
		DBDir:    getEnv("COSTS_DB_DIR", "./data"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "costs"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "cost_events"),

		QueryCacheSize: getEnvInt("QUERY_CACHE_SIZE", 64),
		QueryCacheTTL:  getEnvDuration("QUERY_CACHE_TTL", 5*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.DBDir == "" {
		errors = append(errors, "database directory cannot be empty")
	} else if info, err := os.Stat(c.DBDir); err == nil && !info.IsDir() {
		errors = append(errors, fmt.Sprintf("database directory '%s' is not a directory", c.DBDir))
	} else if err != nil && !os.IsNotExist(err) {
		errors = append(errors, fmt.Sprintf("cannot access database directory '%s': %v", c.DBDir, err))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if strings.ToLower(c.LogLevel) == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.QueryCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid query cache size %d: must not be negative", c.QueryCacheSize))
	} else if c.QueryCacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid query cache size %d: must be at most 10000", c.QueryCacheSize))
	}

	if c.QueryCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid query cache TTL %v: must not be negative", c.QueryCacheTTL))
	} else if c.QueryCacheTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid query cache TTL %v: must be at most 24 hours", c.QueryCacheTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// DBPath returns the cost database file path inside DBDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DBDir, "CostManagerDB.sqlite")
}

// EventsEnabled reports whether cost events should be published.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
