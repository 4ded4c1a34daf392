package media

import (
	"context"
	"fmt"

	"github.com/go-monolith/mono"
	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	"github.com/go-monolith/mono/pkg/types"
)

// Module implements media storage using the fs-jetstream plugin.
type Module struct {
	storage   *fsjetstream.PluginModule
	service   *Service
	maxUpload int64
	logger    types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.UsePluginModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a media module.
func NewModule(maxUpload int64, logger types.Logger) *Module {
	return &Module{maxUpload: maxUpload, logger: logger}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "media"
}

// SetPlugin receives the storage plugin from the framework.
func (m *Module) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "storage" {
		return
	}
	storage, ok := plugin.(*fsjetstream.PluginModule)
	if !ok {
		m.logger.Error("Invalid plugin type for storage",
			"alias", alias,
			"expected", "*fsjetstream.PluginModule")
		return
	}
	m.storage = storage
	m.logger.Info("Received storage plugin", "alias", alias)
}

// Start resolves every bucket and builds the service.
func (m *Module) Start(_ context.Context) error {
	if m.storage == nil {
		return fmt.Errorf("required plugin 'storage' not registered")
	}

	buckets := make(map[string]fsjetstream.FileStoragePort, len(BucketNames))
	for _, name := range BucketNames {
		b := m.storage.Bucket(name)
		if b == nil {
			return fmt.Errorf("bucket '%s' not found in storage plugin", name)
		}
		buckets[name] = b
	}
	m.service = NewService(buckets, m.maxUpload)

	m.logger.Info("Media module started",
		"buckets", len(buckets),
		"max_upload", m.service.MaxUpload())
	return nil
}

// Stop gracefully shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Media module stopped")
	return nil
}

// Service returns the media service. It is nil before Start.
func (m *Module) Service() *Service {
	return m.service
}

// Health counts the stored objects per bucket.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	details := make(map[string]any, len(BucketNames))
	for _, name := range BucketNames {
		objects, err := m.service.List(ctx, name)
		if err != nil {
			return mono.HealthStatus{Healthy: false, Message: err.Error()}
		}
		details[name] = len(objects)
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// Store saves data through the started service. It lets other modules hold
// the module before Start has built the service.
func (m *Module) Store(ctx context.Context, bucket, filename, contentType string, data []byte) (string, error) {
	if m.service == nil {
		return "", ErrNotStarted
	}
	return m.service.Store(ctx, bucket, filename, contentType, data)
}

// Upload saves a demo upload through the started service.
func (m *Module) Upload(ctx context.Context, filename, contentType string, data []byte) (*Object, error) {
	if m.service == nil {
		return nil, ErrNotStarted
	}
	return m.service.Upload(ctx, filename, contentType, data)
}

// Open reads an object through the started service.
func (m *Module) Open(ctx context.Context, ref string) ([]byte, *Object, error) {
	if m.service == nil {
		return nil, nil, ErrNotStarted
	}
	return m.service.Open(ctx, ref)
}

// MaxUpload returns the upload size limit in bytes.
func (m *Module) MaxUpload() int64 {
	if m.maxUpload <= 0 {
		return DefaultMaxUpload
	}
	return m.maxUpload
}
