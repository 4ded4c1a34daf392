package shop

import (
	"context"

	"github.com/example/shop-monolith/events"
	"github.com/example/shop-monolith/modules/cache"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module wires the shop service into the application.
type Module struct {
	service     *Service
	cachePlugin *cache.PluginModule
	eventBus    mono.EventBus
	logger      types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.UsePluginModule       = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the shop module. Exports are cached in memory until the
// cache plugin takes over on Start.
func NewModule(products ProductStore, orders OrderStore, users UserLookup, cfg Config, logger types.Logger) *Module {
	return &Module{
		service: NewService(products, orders, users, nil, cfg),
		logger:  logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "shop"
}

// Service returns the shop service.
func (m *Module) Service() *Service {
	return m.service
}

// SetPlugin receives the cache plugin from the framework.
func (m *Module) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "cache" {
		return
	}
	p, ok := plugin.(*cache.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for cache",
			"alias", alias,
			"expected", "*cache.PluginModule")
		return
	}
	m.cachePlugin = p
	m.logger.Info("Received cache plugin", "alias", alias)
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
	m.service.SetEventBus(bus)
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.ProductCreatedV1.ToBase(),
		events.ProductUpdatedV1.ToBase(),
		events.ProductArchivedV1.ToBase(),
		events.OrderCreatedV1.ToBase(),
		events.OrderDeletedV1.ToBase(),
	}
}

// Start switches exports to the cache plugin when one is registered.
func (m *Module) Start(_ context.Context) error {
	if m.cachePlugin != nil {
		if port := m.cachePlugin.Port(); port != nil {
			m.service.SetExportCache(port)
		}
	} else {
		m.logger.Warn("Cache plugin not registered, exports are cached in process memory")
	}
	if m.eventBus == nil {
		m.logger.Warn("eventBus not set, events will not be published")
	}
	m.logger.Info("Shop module started",
		"export_ttl", m.service.cfg.ExportTTL.String(),
		"api_list_ttl", m.service.cfg.APIListTTL.String())
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Shop module stopped")
	return nil
}

// Health reports the export cache counters.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	stats := m.service.ExportCache().Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"export_cache": stats.Backend,
			"export_hits":  stats.Hits,
			"export_miss":  stats.Misses,
			"media":        m.service.media != nil,
		},
	}
}
