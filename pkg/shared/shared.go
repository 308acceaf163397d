// Package shared provides common helpers for wiring the alert manager.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// GetEnvOrDefault returns the environment variable value or a default if not set.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvIntOrDefault returns the environment variable parsed as an int, or the default
// when it is unset or malformed.
func GetEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Ignoring malformed integer environment variable", "key", key, "value", value)
		return defaultValue
	}
	return n
}

// GetEnvSecondsOrDefault reads a whole number of seconds, e.g. ALERT_COOLDOWN_SECONDS=300.
func GetEnvSecondsOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Ignoring malformed seconds environment variable", "key", key, "value", value)
		return defaultValue
	}
	return time.Duration(n) * time.Second
}

// GetEnvDurationOrDefault reads a Go duration string such as "5s" or "2m".
func GetEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Ignoring malformed duration environment variable", "key", key, "value", value)
		return defaultValue
	}
	return d
}

// GetEnvBoolOrDefault reads a boolean such as "true", "1" or "false".
func GetEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		slog.Warn("Ignoring malformed boolean environment variable", "key", key, "value", value)
		return defaultValue
	}
	return b
}

// SplitList splits a comma-separated list, trimming whitespace and dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MaskDSN masks sensitive information in a DSN for logging.
func MaskDSN(dsn string) string {
	if len(dsn) > 50 {
		return dsn[:20] + "***" + dsn[len(dsn)-20:]
	}
	return "***"
}

// ParseLogLevel maps debug/info/warn/error to a slog level. Unknown values are an error.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// ConnectRedis creates and validates a Redis connection.
// Returns the client and nil on success, or nil and an error on failure.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return client, nil
}
