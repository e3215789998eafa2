package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"revenue/internal/log"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	TrustedProxies     []string

	// Database
	SQLiteDBPath string

	// AMQP; an empty URL disables event publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Reports
	DefaultPageLimit int
	ReportCacheSize  int
	ReportCacheTTL   time.Duration

	// Worker
	AuditInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Client CLI
	APIBaseURL string
	APIToken   string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "3001"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		TrustedProxies:     getEnvList("TRUSTED_PROXIES"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/revenue.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "revenue"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "revenue_events"),

		DefaultPageLimit: getEnvInt("DEFAULT_PAGE_LIMIT", 10000),
		ReportCacheSize:  getEnvInt("REPORT_CACHE_SIZE", 64),
		ReportCacheTTL:   getEnvDuration("REPORT_CACHE_TTL", 30*time.Second),

		AuditInterval: getEnvDuration("AUDIT_INTERVAL", 10*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:3001"),
		APIToken:   getEnv("API_TOKEN", ""),
	}
}

// AMQPEnabled reports whether an AMQP broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

// Validate checks every setting and returns all problems at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.SQLiteDBPath) == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	}

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

	if c.DefaultPageLimit < 1 || c.DefaultPageLimit > 100000 {
		errors = append(errors, fmt.Sprintf("invalid default page limit %d: must be between 1 and 100000", c.DefaultPageLimit))
	}

	if c.ReportCacheSize < 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must not be negative", c.ReportCacheSize))
	}
	if c.ReportCacheSize > 0 && c.ReportCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be positive when caching is enabled", c.ReportCacheTTL))
	}

	if c.RateLimitPerMinute < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitPerMinute))
	}

	if c.AuditInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid audit interval %v: must be at least 1 second", c.AuditInterval))
	} else if c.AuditInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid audit interval %v: must be at most 24 hours", c.AuditInterval))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}
	if f := strings.ToLower(c.LogFormat); f != "" && f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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
