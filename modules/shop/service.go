// Package shop implements the product and order flows: every write is
// authorized, then validated, then persisted.
package shop

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/authz"
	domain "github.com/example/shop-monolith/domain/shop"
	"github.com/example/shop-monolith/events"
	"github.com/example/shop-monolith/modules/cache"
	"github.com/go-monolith/mono"
	"github.com/viccon/sturdyc"
)

// ProductStore is the product persistence the service needs.
type ProductStore interface {
	Get(ctx context.Context, id uint) (*domain.Product, error)
	ListActive(ctx context.Context, filter domain.ProductFilter) (*domain.Page[domain.Product], error)
	List(ctx context.Context, filter domain.ProductFilter) (*domain.Page[domain.Product], error)
	Create(ctx context.Context, fields domain.ProductFields, creatorID uint) (*domain.Product, error)
	CreateMany(ctx context.Context, fields []domain.ProductFields, creatorID uint) ([]domain.Product, error)
	GetOrCreateByName(ctx context.Context, name string, creatorID uint) (*domain.Product, bool, error)
	Update(ctx context.Context, id uint, fields domain.ProductFields, imageKeys ...string) (*domain.Product, error)
	SetArchived(ctx context.Context, id uint, archived bool) (*domain.Product, error)
	SetArchivedBulk(ctx context.Context, ids []uint, archived bool) (int64, error)
	SetPreview(ctx context.Context, id uint, key string) error
	AllByPK(ctx context.Context) ([]domain.Product, error)
	All(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	Latest(ctx context.Context, n int) ([]domain.Product, error)
	FindByIDs(ctx context.Context, ids []uint) ([]domain.Product, error)
}

// OrderStore is the order persistence the service needs.
type OrderStore interface {
	Get(ctx context.Context, id uint) (*domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) (*domain.Page[domain.Order], error)
	Create(ctx context.Context, fields domain.OrderFields) (*domain.Order, error)
	Update(ctx context.Context, id uint, fields domain.OrderFields) (*domain.Order, error)
	Delete(ctx context.Context, id uint) error
	SetReceipt(ctx context.Context, id uint, key string) error
	AllByPK(ctx context.Context) ([]domain.Order, error)
	ListByUser(ctx context.Context, userID uint) ([]domain.Order, error)
}

// UserLookup answers whether a user exists.
type UserLookup interface {
	Exists(ctx context.Context, id uint) (bool, error)
}

// MediaPort stores uploaded files and returns their object keys.
type MediaPort interface {
	Store(ctx context.Context, bucket, filename, contentType string, data []byte) (string, error)
}

// Media buckets used by the shop.
const (
	PreviewsBucket = "previews"
	ImagesBucket   = "images"
	ReceiptsBucket = "receipts"
)

// Config tunes the shop service.
type Config struct {
	ExportTTL  time.Duration
	APIListTTL time.Duration
}

// Service implements the shop flows.
type Service struct {
	products ProductStore
	orders   OrderStore
	users    UserLookup
	exports  cache.ExportCache
	apiList  *sturdyc.Client[*domain.Page[domain.Product]]
	media    MediaPort
	bus      mono.EventBus
	cfg      Config
	started  time.Time
	now      func() time.Time
}

// NewService creates a Service. A nil exports cache is replaced by an
// in-memory one.
func NewService(products ProductStore, orders OrderStore, users UserLookup, exports cache.ExportCache, cfg Config) *Service {
	if cfg.ExportTTL <= 0 {
		cfg.ExportTTL = cache.DefaultExportTTL
	}
	if cfg.APIListTTL <= 0 {
		cfg.APIListTTL = 2 * time.Minute
	}
	if exports == nil {
		exports = cache.NewService(cache.NewMemoryBackend(nil))
	}
	return &Service{
		products: products,
		orders:   orders,
		users:    users,
		exports:  exports,
		apiList:  sturdyc.New[*domain.Page[domain.Product]](1000, 10, cfg.APIListTTL, 10),
		cfg:      cfg,
		started:  time.Now(),
		now:      time.Now,
	}
}

// SetEventBus enables event publishing.
func (s *Service) SetEventBus(bus mono.EventBus) {
	s.bus = bus
}

// SetMedia wires the media storage used for previews, images and receipts.
func (s *Service) SetMedia(media MediaPort) {
	s.media = media
}

// SetExportCache replaces the export cache.
func (s *Service) SetExportCache(exports cache.ExportCache) {
	if exports != nil {
		s.exports = exports
	}
}

// ExportCache returns the cache serving the export payloads.
func (s *Service) ExportCache() cache.ExportCache {
	return s.exports
}

// ListProducts returns a page of products that are not archived.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) (*domain.Page[domain.Product], error) {
	return s.products.ListActive(ctx, filter)
}

// GetProduct returns a product with its images. Archived products are
// returned too.
func (s *Service) GetProduct(ctx context.Context, id uint) (*domain.Product, error) {
	return s.products.Get(ctx, id)
}

// CreateProduct stores a product owned by actor.
func (s *Service) CreateProduct(ctx context.Context, actor *account.Actor, in ProductInput) (*domain.Product, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	if err := toValidationError(in.Validate()); err != nil {
		return nil, err
	}

	product, err := s.products.Create(ctx, in.fields(), actor.ID)
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		event := events.ProductCreatedEvent{
			ProductID:   product.ID,
			Name:        product.Name,
			Price:       product.Price.StringFixed(2),
			CreatedByID: product.CreatedByID,
			CreatedAt:   product.CreatedAt,
		}
		if err := events.ProductCreatedV1.Publish(s.bus, event, nil); err != nil {
			log.Printf("[shop] Warning: failed to publish ProductCreated event for product %d: %v", product.ID, err)
		}
	}
	return product, nil
}

// UpdateProduct overwrites a product's fields and attaches any uploaded
// images. Only the owner holding change_product, or a superuser, may.
// Images are stored before the row is touched, so a failed upload leaves
// the product unchanged. Objects stored before a later failure stay in the
// images bucket unreferenced.
func (s *Service) UpdateProduct(ctx context.Context, actor *account.Actor, id uint, in ProductInput, images []Upload) (*domain.Product, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanEditProduct(actor, product).Err(); err != nil {
		return nil, err
	}
	if err := toValidationError(in.Validate()); err != nil {
		return nil, err
	}
	if len(images) > 0 && s.media == nil {
		return nil, ErrMediaUnavailable
	}

	keys := make([]string, 0, len(images))
	for _, img := range images {
		key, err := s.media.Store(ctx, ImagesBucket, img.Filename, img.ContentType, img.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to store product image: %w", err)
		}
		keys = append(keys, key)
	}

	product, err = s.products.Update(ctx, id, in.fields(), keys...)
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		event := events.ProductUpdatedEvent{ProductID: id, ActorID: actor.ID, UpdatedAt: s.now()}
		if err := events.ProductUpdatedV1.Publish(s.bus, event, nil); err != nil {
			log.Printf("[shop] Warning: failed to publish ProductUpdated event for product %d: %v", id, err)
		}
	}
	return product, nil
}

// ArchiveProduct marks a product archived. Archiving an archived product
// succeeds and changes nothing.
func (s *Service) ArchiveProduct(ctx context.Context, actor *account.Actor, id uint) (*domain.Product, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanEditProduct(actor, product).Err(); err != nil {
		return nil, err
	}

	product, err = s.products.SetArchived(ctx, id, true)
	if err != nil {
		return nil, err
	}
	s.publishArchived(actor, id, true)
	return product, nil
}

// BulkSetArchived sets the archived flag on several products at once and
// returns how many matched. Superusers only.
func (s *Service) BulkSetArchived(ctx context.Context, actor *account.Actor, ids []uint, archived bool) (int64, error) {
	if err := authz.RequireSuperuser(actor).Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, &ValidationError{Fields: map[string]string{"ids": "cannot be blank"}}
	}

	n, err := s.products.SetArchivedBulk(ctx, ids, archived)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.publishArchived(actor, id, archived)
	}
	log.Printf("[shop] %d products marked archived=%t by user %d", n, archived, actor.ID)
	return n, nil
}

func (s *Service) publishArchived(actor *account.Actor, id uint, archived bool) {
	if s.bus == nil {
		return
	}
	event := events.ProductArchivedEvent{ProductID: id, ActorID: actor.ID, Archived: archived, ChangedAt: s.now()}
	if err := events.ProductArchivedV1.Publish(s.bus, event, nil); err != nil {
		log.Printf("[shop] Warning: failed to publish ProductArchived event for product %d: %v", id, err)
	}
}

// AttachPreview stores an uploaded preview picture for a product.
func (s *Service) AttachPreview(ctx context.Context, actor *account.Actor, id uint, upload Upload) (*domain.Product, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanEditProduct(actor, product).Err(); err != nil {
		return nil, err
	}
	if s.media == nil {
		return nil, ErrMediaUnavailable
	}

	key, err := s.media.Store(ctx, PreviewsBucket, upload.Filename, upload.ContentType, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store product preview: %w", err)
	}
	if err := s.products.SetPreview(ctx, id, key); err != nil {
		return nil, err
	}
	product.Preview = key
	return product, nil
}

// APIListProducts lists products for the REST API. Pages are served from a
// short-lived cache keyed by the filter.
func (s *Service) APIListProducts(ctx context.Context, filter domain.ProductFilter) (*domain.Page[domain.Product], error) {
	return s.apiList.GetOrFetch(ctx, apiListKey(filter), func(ctx context.Context) (*domain.Page[domain.Product], error) {
		return s.products.List(ctx, filter)
	})
}

func apiListKey(f domain.ProductFilter) string {
	archived := "any"
	if f.Archived != nil {
		archived = strconv.FormatBool(*f.Archived)
	}
	return fmt.Sprintf("products:search=%s:name=%s:archived=%s:ordering=%s:page=%d",
		f.Search, f.Name, archived, f.Ordering, f.Page)
}

// IndexProduct is one row of the shop index demo.
type IndexProduct struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
}

// Index is the shop landing payload.
type Index struct {
	Products    []IndexProduct `json:"products"`
	Items       int            `json:"items"`
	TimeRunning float64        `json:"time_running"`
}

// Index returns the fixed demo product list and the process uptime.
func (s *Service) Index() Index {
	return Index{
		Products: []IndexProduct{
			{Name: "Laptop", Price: 1999},
			{Name: "Desktop", Price: 2999},
			{Name: "Smartphone", Price: 999},
		},
		Items:       1,
		TimeRunning: s.now().Sub(s.started).Seconds(),
	}
}

// SeedProducts makes sure the demo catalog exists, creating missing
// products owned by ownerID.
func (s *Service) SeedProducts(ctx context.Context, ownerID uint) ([]domain.Product, error) {
	names := []string{"Laptop", "Desktop", "Smartphone"}
	seeded := make([]domain.Product, 0, len(names))
	for _, name := range names {
		product, created, err := s.products.GetOrCreateByName(ctx, name, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to seed product %s: %w", name, err)
		}
		if created {
			log.Printf("[shop] Created product %s", product.Name)
		}
		seeded = append(seeded, *product)
	}
	return seeded, nil
}
