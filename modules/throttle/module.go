package throttle

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
)

// Module provides the request throttle as a mono module.
type Module struct {
	config     Config
	client     *redis.Client
	middleware *Middleware
}

// Compile-time interface checks
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates the throttle module. The middleware is usable right
// away; the Redis connection is verified on Start.
func NewModule(opts ...Option) (*Module, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Limit <= 0 || config.Window <= 0 {
		return nil, fmt.Errorf("throttle limit and window must be positive")
	}

	m := &Module{config: config}
	var counter Counter
	switch config.Backend {
	case BackendMemory, "":
		counter = NewMemoryCounter(config.Limit, config.Window, nil)
	case BackendRedis:
		m.client = redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		counter = NewRedisCounter(m.client, config.Limit, config.Window, config.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown throttle backend %q", config.Backend)
	}
	m.middleware = NewMiddleware(counter, config)
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "throttle"
}

// Start checks the Redis connection. An unreachable Redis is logged and the
// throttle fails open.
func (m *Module) Start(ctx context.Context) error {
	if m.client != nil {
		if err := m.client.Ping(ctx).Err(); err != nil {
			log.Printf("[throttle] Redis at %s unreachable, requests will not be throttled: %v", m.config.RedisAddr, err)
		} else {
			log.Printf("[throttle] Connected to Redis at %s", m.config.RedisAddr)
		}
	}
	log.Printf("[throttle] Module started (backend: %s, limit: %d per %s, per_ip: %t)",
		m.backend(), m.config.Limit, m.config.Window, m.config.PerIP)
	return nil
}

// Stop closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			log.Printf("[throttle] Error closing Redis connection: %v", err)
		}
	}
	log.Println("[throttle] Module stopped")
	return nil
}

// Middleware returns the Fiber middleware.
func (m *Module) Middleware() *Middleware {
	return m.middleware
}

// Health reports the totals and, for Redis, the connection state.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	stats := m.middleware.Stats()
	details := map[string]any{
		"backend":   m.backend(),
		"requests":  stats.Requests,
		"throttled": stats.Throttled,
	}
	if m.client != nil {
		if err := m.client.Ping(ctx).Err(); err != nil {
			return mono.HealthStatus{
				Healthy: false,
				Message: fmt.Sprintf("redis ping failed: %v", err),
				Details: details,
			}
		}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

func (m *Module) backend() string {
	if m.config.Backend == "" {
		return BackendMemory
	}
	return m.config.Backend
}
