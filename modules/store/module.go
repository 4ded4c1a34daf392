package store

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"gorm.io/gorm"
)

// Module owns the database connection lifecycle inside the application.
type Module struct {
	db    *gorm.DB
	cfg   Config
	repos *Repositories
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule wraps an opened connection.
func NewModule(db *gorm.DB, cfg Config) *Module {
	return &Module{
		db:    db,
		cfg:   cfg,
		repos: NewRepositories(db, cfg.Timeout),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// Repositories returns the repositories bound to this connection.
func (m *Module) Repositories() *Repositories {
	return m.repos
}

// Start verifies the connection is usable.
func (m *Module) Start(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Printf("[store] Module started (driver: %s)", m.driver())
	return nil
}

// Stop closes the connection pool.
func (m *Module) Stop(_ context.Context) error {
	return Close(m.db)
}

// Health pings the database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	stats := sqlDB.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver":           m.driver(),
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
		},
	}
}

func (m *Module) driver() string {
	if m.cfg.Driver == "" {
		return "sqlite"
	}
	return m.cfg.Driver
}
