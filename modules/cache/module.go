package cache

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/storage/redis/v3"
)

// Config selects the cache backend.
type Config struct {
	// Backend is "memory" (default) or "redis".
	Backend   string
	RedisAddr string
	Prefix    string
	// Now overrides the memory backend clock.
	Now func() time.Time
}

// PluginModule provides the export cache as a mono plugin module.
// Plugins start first and stop last.
type PluginModule struct {
	container types.ServiceContainer
	cfg       Config
	service   *Service
}

// Compile-time interface checks.
var (
	_ mono.PluginModule          = (*PluginModule)(nil)
	_ mono.HealthCheckableModule = (*PluginModule)(nil)
)

// NewPluginModule creates the cache plugin. The memory backend is built
// immediately so Port() works before Start().
func NewPluginModule(cfg Config) *PluginModule {
	if cfg.Prefix == "" {
		cfg.Prefix = "shop:"
	}
	m := &PluginModule{cfg: cfg}
	if cfg.Backend != "redis" {
		m.service = NewService(NewMemoryBackend(cfg.Now))
	}
	return m
}

// Name returns the module name.
func (m *PluginModule) Name() string {
	return "cache"
}

// Start connects the Redis backend when configured.
func (m *PluginModule) Start(_ context.Context) error {
	if m.cfg.Backend == "redis" {
		host, port := parseRedisAddr(m.cfg.RedisAddr)
		store := redis.New(redis.Config{
			Host:     host,
			Port:     port,
			PoolSize: 50,
		})
		m.service = NewService(NewStorageBackend(store, m.cfg.Prefix))
		log.Printf("[cache] Connected to Redis at %s (prefix: %s)", m.cfg.RedisAddr, m.cfg.Prefix)
	}
	log.Printf("[cache] Plugin started (backend: %s)", m.service.backend.Kind())
	return nil
}

// Stop closes the backend.
func (m *PluginModule) Stop(_ context.Context) error {
	if m.service != nil {
		if err := m.service.Close(); err != nil {
			log.Printf("[cache] Error closing backend: %v", err)
			return fmt.Errorf("failed to close cache backend: %w", err)
		}
	}
	log.Println("[cache] Plugin stopped")
	return nil
}

// SetContainer sets the service container for this plugin.
func (m *PluginModule) SetContainer(container types.ServiceContainer) {
	m.container = container
}

// Container returns the service container for this plugin.
func (m *PluginModule) Container() types.ServiceContainer {
	return m.container
}

// Port returns the ExportCache for consumers. It is nil for the Redis
// backend until Start has run.
func (m *PluginModule) Port() ExportCache {
	if m.service == nil {
		return nil
	}
	return m.service
}

// Health reports the backend and its counters.
func (m *PluginModule) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "cache backend not initialized",
		}
	}

	if _, _, err := m.service.backend.Get(ctx, "__health_check__"); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("health check failed: %v", err),
		}
	}

	stats := m.service.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"backend":  stats.Backend,
			"hits":     stats.Hits,
			"misses":   stats.Misses,
			"hit_rate": stats.HitRate,
		},
	}
}

// parseRedisAddr parses "host:port", falling back to 127.0.0.1:6379.
func parseRedisAddr(addr string) (string, int) {
	const defaultHost = "127.0.0.1"
	const defaultPort = 6379

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	if host == "" {
		host = defaultHost
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = defaultPort
	}
	return host, port
}
