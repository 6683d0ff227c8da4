// Package config centralises configuration parsing for the signup service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values for the API and the roster consumer.
type Config struct {
	HTTPAddress        string
	MetricsAddress     string // Listen address for the consumer's metrics endpoint.
	CORSAllowedOrigins []string
	SeedFile           string // Optional YAML seed; empty selects the built-in catalogue.
	EnforceCapacity    bool
	KafkaBrokers       []string // Empty disables event publishing.
	MembershipTopic    string
	ConsumerGroupID    string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxQueueSize    int
	OutboxMaxRetries   int
	OutboxBaseDelay    time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           string
	LogFormat          string
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
func Load() Config {
	return Config{
		HTTPAddress:        getEnv("HTTP_ADDRESS", ":8000"),
		MetricsAddress:     getEnv("METRICS_ADDRESS", ":9102"),
		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8000")),
		SeedFile:           getEnv("ACTIVITIES_SEED_FILE", ""),
		EnforceCapacity:    getBoolEnv("ENFORCE_CAPACITY", false),
		KafkaBrokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		MembershipTopic:    getEnv("MEMBERSHIP_TOPIC", "activity_membership"),
		ConsumerGroupID:    getEnv("CONSUMER_GROUP_ID", "roster-audit"),
		OutboxPollInterval: getDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
		OutboxBatchSize:    getIntEnv("OUTBOX_BATCH_SIZE", 50),
		OutboxQueueSize:    getIntEnv("OUTBOX_QUEUE_SIZE", 1024),
		OutboxMaxRetries:   getIntEnv("OUTBOX_MAX_RETRIES", 3),
		OutboxBaseDelay:    getDurationEnv("OUTBOX_BASE_DELAY", 100*time.Millisecond),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
