package redis

import "log/slog"

// Config holds Redis connection and key settings.
type Config struct {
	// URL is the Redis connection URL (e.g., redis://localhost:6379)
	URL string

	PoolSize     int
	MinIdleConns int

	// KeyPrefix namespaces every key and channel this store touches.
	KeyPrefix string

	// UniqueColumns are enforced on insert, e.g. "email".
	UniqueColumns []string

	// Logger reports rows skipped while querying. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		URL:           "redis://localhost:6379",
		PoolSize:      10,
		MinIdleConns:  2,
		KeyPrefix:     "regbot",
		UniqueColumns: []string{"email"},
	}
}
