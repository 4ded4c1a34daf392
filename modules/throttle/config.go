// Package throttle counts requests per window and rejects clients that
// refresh too often.
package throttle

import (
	"context"
	"time"
)

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds throttle configuration.
type Config struct {
	// Backend is "memory" (fixed window) or "redis" (sliding window).
	Backend string

	// Limit is the number of requests allowed per window. The next one is rejected.
	Limit int

	// Window is the counting period.
	Window time.Duration

	// PerIP counts each client address separately instead of all requests together.
	PerIP bool

	// RedisAddr is the Redis server address for the redis backend.
	RedisAddr string

	// KeyPrefix is the prefix for Redis keys.
	KeyPrefix string
}

// DefaultConfig returns the process-wide counter of 54 requests per minute.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendMemory,
		Limit:     54,
		Window:    time.Minute,
		RedisAddr: "localhost:6379",
		KeyPrefix: "throttle:",
	}
}

// Option configures the throttle.
type Option func(*Config)

// WithBackend selects the counter backend.
func WithBackend(backend string) Option {
	return func(c *Config) {
		c.Backend = backend
	}
}

// WithLimit sets the requests allowed per window.
func WithLimit(limit int, window time.Duration) Option {
	return func(c *Config) {
		c.Limit = limit
		c.Window = window
	}
}

// WithPerIP keys the counter by client address.
func WithPerIP(perIP bool) Option {
	return func(c *Config) {
		c.PerIP = perIP
	}
}

// WithRedisAddr sets the Redis address.
func WithRedisAddr(addr string) Option {
	return func(c *Config) {
		c.RedisAddr = addr
	}
}

// Result is the outcome of one counted request.
type Result struct {
	Allowed    bool
	Count      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Counter decides whether a request identified by key is allowed.
type Counter interface {
	// Allow counts one request for key.
	Allow(ctx context.Context, key string) (*Result, error)

	// Reset forgets every request counted for key.
	Reset(ctx context.Context, key string) error
}
