package blog

import (
	"context"
	"log"

	"github.com/go-monolith/mono"
)

// Module exposes the blog service inside the application.
type Module struct {
	service *Service
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates the blog module over articles.
func NewModule(articles ArticleStore) *Module {
	return &Module{service: NewService(articles)}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "blog"
}

// Service returns the blog service.
func (m *Module) Service() *Service {
	return m.service
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	log.Println("[blog] Module started")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[blog] Module stopped")
	return nil
}

// Health checks that the article store answers.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	latest, err := m.service.articles.LatestArticles(ctx, 1)
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"has_articles": len(latest) > 0},
	}
}
