// Package httpserver exposes the shop, blog, account and demo endpoints over
// Fiber. Handlers resolve the requester, guard the route and delegate to the
// services; every error is mapped in one place.
package httpserver

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/modules/account"
	"github.com/example/shop-monolith/modules/activity"
	"github.com/example/shop-monolith/modules/blog"
	"github.com/example/shop-monolith/modules/media"
	"github.com/example/shop-monolith/modules/shop"
	"github.com/example/shop-monolith/modules/throttle"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// MediaStore is the media storage the handlers need.
type MediaStore interface {
	Store(ctx context.Context, bucket, filename, contentType string, data []byte) (string, error)
	Upload(ctx context.Context, filename, contentType string, data []byte) (*media.Object, error)
	Open(ctx context.Context, ref string) ([]byte, *media.Object, error)
	MaxUpload() int64
}

// ActivityLog is the audit trail shown to staff.
type ActivityLog interface {
	Recent(limit int, prefix string) []activity.Entry
	Counts() map[string]int64
}

// Config configures the HTTP server.
type Config struct {
	Port       int
	BaseURL    string
	SessionTTL time.Duration
	BodyLimit  int
}

// Deps are the services the handlers delegate to. Media, Throttle and
// Activity are optional.
type Deps struct {
	Shop     *shop.Service
	Blog     *blog.Service
	Accounts *account.Service
	Media    MediaStore
	Throttle *throttle.Middleware
	Activity ActivityLog
	Health   map[string]mono.HealthCheckableModule
}

// Module is the HTTP server module.
type Module struct {
	cfg    Config
	deps   Deps
	actors account.ActorPort
	app    *fiber.App
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the HTTP server module.
func NewModule(cfg Config, deps Deps) *Module {
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 8 * 1024 * 1024
	}
	return &Module{cfg: cfg, deps: deps}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "httpserver"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"account"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "account":
		m.actors = account.NewActorAdapter(container)
	}
}

// Start initializes the Fiber HTTP server.
func (m *Module) Start(_ context.Context) error {
	if m.actors == nil {
		return fmt.Errorf("account dependency not set")
	}
	if m.deps.Shop == nil || m.deps.Blog == nil || m.deps.Accounts == nil {
		return fmt.Errorf("shop, blog and account services are required")
	}

	m.app = m.newApp()

	go func() {
		if err := m.app.Listen(fmt.Sprintf(":%d", m.cfg.Port)); err != nil {
			log.Printf("[httpserver] HTTP server error: %v", err)
		}
	}()

	log.Printf("[httpserver] HTTP server started on :%d", m.cfg.Port)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *Module) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[httpserver] Shutting down HTTP server...")
	return m.app.Shutdown()
}

// Health returns the health status of the module.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port": m.cfg.Port,
		},
	}
}

// newApp builds the Fiber app with middleware and routes.
func (m *Module) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		BodyLimit:             m.cfg.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New())

	// registered before the throttle so probes are never limited
	app.Get("/health", m.health)

	if m.deps.Throttle != nil {
		app.Use(m.deps.Throttle.Handler())
	}
	app.Use(ActorMiddleware(m.actors))

	m.setupRoutes(app)
	return app
}

// setupRoutes configures all routes. Fixed paths are registered before the
// ":id" routes sharing their prefix.
func (m *Module) setupRoutes(app *fiber.App) {
	h := &handlers{cfg: m.cfg, deps: m.deps}

	shopRoutes := app.Group("/shop")
	shopRoutes.Get("/", h.shopIndex)
	shopRoutes.Get("/groups/", h.listGroups)
	shopRoutes.Post("/groups/", h.createGroup)
	shopRoutes.Get("/products/", h.listProducts)
	shopRoutes.Post("/products/create/", h.createProduct)
	shopRoutes.Get("/products/export/", h.exportProducts)
	shopRoutes.Get("/products/latest/feed/", h.productsFeed)
	shopRoutes.Get("/products/:id/", h.productDetail)
	shopRoutes.Post("/products/:id/update/", h.updateProduct)
	shopRoutes.Post("/products/:id/archive/", h.archiveProduct)
	shopRoutes.Post("/products/:id/preview/", h.productPreview)
	shopRoutes.Get("/orders/", h.listOrders)
	shopRoutes.Post("/orders/create/", h.createOrder)
	shopRoutes.Get("/orders/export/", h.exportOrders)
	shopRoutes.Get("/orders/:id/", h.orderDetail)
	shopRoutes.Post("/orders/:id/update/", h.updateOrder)
	shopRoutes.Post("/orders/:id/delete/", h.deleteOrder)
	shopRoutes.Post("/orders/:id/receipt/", h.orderReceipt)
	shopRoutes.Get("/users/:user_id/orders/", guard(authz.RequireAuthenticated), h.userOrders)
	shopRoutes.Get("/users/:user_id/orders/export/", h.exportUserOrders)
	shopRoutes.Post("/admin/products/archive/", h.bulkArchive)

	api := app.Group("/api")
	api.Get("/hello/", h.hello)
	api.Get("/groups/", h.listGroups)
	api.Post("/groups/", h.createGroup)
	api.Get("/products/", h.apiListProducts)
	api.Post("/products/", h.apiCreateProduct)
	api.Get("/products/download_csv/", h.downloadCSV)
	api.Post("/products/upload_csv/", h.uploadCSV)
	api.Get("/products/:id/", h.productDetail)
	api.Put("/products/:id/", h.apiUpdateProduct)
	api.Delete("/products/:id/", h.apiArchiveProduct)
	api.Get("/orders/", h.listOrders)
	api.Post("/orders/", h.createOrder)
	api.Get("/orders/:id/", h.orderDetail)

	blogRoutes := app.Group("/blog")
	blogRoutes.Get("/articles/", h.listArticles)
	blogRoutes.Post("/articles/", h.createArticle)
	blogRoutes.Get("/articles/latest/feed/", h.articlesFeed)
	blogRoutes.Get("/articles/:id/", h.articleDetail)

	accounts := app.Group("/accounts")
	accounts.Post("/register/", h.register)
	accounts.Post("/login/", h.login)
	accounts.Post("/logout/", h.logout)
	accounts.Get("/about-me/", guard(authz.RequireAuthenticated), h.aboutMe)
	accounts.Get("/users/", h.listUsers)
	accounts.Get("/users/:id/", h.userDetail)
	accounts.Post("/users/:id/update/", h.updateProfile)
	accounts.Delete("/users/:id/", h.deleteUser)
	accounts.Post("/users/:id/permissions/", h.grantPermission)
	accounts.Get("/cookies/set/", h.setCookie)
	accounts.Get("/cookies/get/", h.getCookie)
	accounts.Get("/sessions/set/", h.setSession)
	accounts.Get("/sessions/get/", h.getSession)
	accounts.Get("/foobar/", h.fooBar)

	req := app.Group("/req")
	req.Get("/get/", h.queryParams)
	req.Post("/upload/", h.uploadFile)
	req.Get("/stats/", h.throttleStats)
	req.Post("/stats/reset/", guard(authz.RequireSuperuser), h.resetThrottle)

	app.Get("/activity/", guard(authz.RequireStaff), h.activity)
	app.Get("/media/:bucket/:id/:name", h.mediaObject)
}
