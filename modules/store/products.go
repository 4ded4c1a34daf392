package store

import (
	"context"
	"errors"
	"strings"

	"github.com/example/shop-monolith/domain/shop"
	"gorm.io/gorm"
)

// ProductRepository provides access to product storage.
type ProductRepository struct {
	base
}

// Get returns a product with its images, archived or not.
func (r *ProductRepository) Get(ctx context.Context, id uint) (*shop.Product, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var product shop.Product
	err := db.Preload("Images", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("id ASC")
	}).First(&product, id).Error
	if err != nil {
		return nil, classify("find product", err)
	}
	return &product, nil
}

// ListActive returns a page of non-archived products.
func (r *ProductRepository) ListActive(ctx context.Context, filter shop.ProductFilter) (*shop.Page[shop.Product], error) {
	active := false
	filter.Archived = &active
	return r.List(ctx, filter)
}

// List returns a page of products matching filter.
func (r *ProductRepository) List(ctx context.Context, filter shop.ProductFilter) (*shop.Page[shop.Product], error) {
	if filter.Page < 0 {
		return nil, ErrInvalidPage
	}
	if filter.Page == 0 {
		filter.Page = 1
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	query := applyProductFilter(db.Model(&shop.Product{}), filter).Session(&gorm.Session{})

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, classify("count products", err)
	}

	numPages := shop.NumPages(count)
	if filter.Page > numPages {
		return nil, ErrInvalidPage
	}

	var products []shop.Product
	err := query.Order(shop.OrderClause(filter.Ordering)).
		Offset(shop.Offset(filter.Page)).
		Limit(shop.PageSize).
		Find(&products).Error
	if err != nil {
		return nil, classify("list products", err)
	}

	return &shop.Page[shop.Product]{
		Items:    products,
		Page:     filter.Page,
		Count:    count,
		NumPages: numPages,
		HasNext:  filter.Page < numPages,
		HasPrev:  filter.Page > 1,
	}, nil
}

func applyProductFilter(query *gorm.DB, filter shop.ProductFilter) *gorm.DB {
	if filter.Archived != nil {
		query = query.Where("archieved = ?", *filter.Archived)
	}
	if filter.Name != "" {
		query = query.Where("name = ?", filter.Name)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	return query
}

// Create stores a new product owned by creatorID.
func (r *ProductRepository) Create(ctx context.Context, fields shop.ProductFields, creatorID uint) (*shop.Product, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	product := &shop.Product{
		Name:        fields.Name,
		Description: fields.Description,
		Price:       fields.Price,
		Discount:    fields.Discount,
		CreatedByID: creatorID,
	}
	if err := db.Create(product).Error; err != nil {
		return nil, classify("create product", err)
	}
	return product, nil
}

// CreateMany stores products in one transaction.
func (r *ProductRepository) CreateMany(ctx context.Context, fields []shop.ProductFields, creatorID uint) ([]shop.Product, error) {
	if len(fields) == 0 {
		return []shop.Product{}, nil
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	products := make([]shop.Product, 0, len(fields))
	for _, f := range fields {
		products = append(products, shop.Product{
			Name:        f.Name,
			Description: f.Description,
			Price:       f.Price,
			Discount:    f.Discount,
			CreatedByID: creatorID,
		})
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&products).Error
	})
	if err != nil {
		return nil, classify("create products", err)
	}
	return products, nil
}

// GetOrCreateByName returns the first product named name, creating it when
// missing. The boolean reports whether a row was created.
func (r *ProductRepository) GetOrCreateByName(ctx context.Context, name string, creatorID uint) (*shop.Product, bool, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var product shop.Product
	err := db.Where("name = ?", name).Order("id ASC").First(&product).Error
	if err == nil {
		return &product, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, classify("find product", err)
	}

	product = shop.Product{Name: name, CreatedByID: creatorID}
	if err := db.Create(&product).Error; err != nil {
		return nil, false, classify("create product", err)
	}
	return &product, true, nil
}

// Update overwrites the writable fields of a product and attaches one image
// row per key. Fields and images are written in one transaction.
func (r *ProductRepository) Update(ctx context.Context, id uint, fields shop.ProductFields, imageKeys ...string) (*shop.Product, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&shop.Product{}).Where("id = ?", id).Updates(map[string]any{
			"name":        fields.Name,
			"description": fields.Description,
			"price":       fields.Price,
			"discount":    fields.Discount,
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, key := range imageKeys {
			if err := tx.Create(&shop.ProductImage{ProductID: id, Image: key}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify("update product", err)
	}
	return r.Get(ctx, id)
}

// SetArchived sets the archived flag. Repeating the call is harmless.
func (r *ProductRepository) SetArchived(ctx context.Context, id uint, archived bool) (*shop.Product, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Model(&shop.Product{}).Where("id = ?", id).Update("archieved", archived)
	if err := result.Error; err != nil {
		return nil, classify("archive product", err)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

// SetArchivedBulk sets the archived flag on every listed product and
// returns how many rows matched.
func (r *ProductRepository) SetArchivedBulk(ctx context.Context, ids []uint, archived bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Model(&shop.Product{}).Where("id IN ?", ids).Update("archieved", archived)
	if err := result.Error; err != nil {
		return 0, classify("archive products", err)
	}
	return result.RowsAffected, nil
}

// SetPreview stores the media key of the product preview.
func (r *ProductRepository) SetPreview(ctx context.Context, id uint, key string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Model(&shop.Product{}).Where("id = ?", id).Update("preview", key)
	if err := result.Error; err != nil {
		return classify("set product preview", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddImage attaches an image to an existing product.
func (r *ProductRepository) AddImage(ctx context.Context, image *shop.ProductImage) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	if err := db.Model(&shop.Product{}).Where("id = ?", image.ProductID).Count(&count).Error; err != nil {
		return classify("find product", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	if err := db.Create(image).Error; err != nil {
		return classify("add product image", err)
	}
	return nil
}

// AllByPK returns every product ordered by primary key.
func (r *ProductRepository) AllByPK(ctx context.Context) ([]shop.Product, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var products []shop.Product
	if err := db.Order("id ASC").Find(&products).Error; err != nil {
		return nil, classify("list products", err)
	}
	return products, nil
}

// All returns every product matching filter without pagination, in the
// filter's ordering.
func (r *ProductRepository) All(ctx context.Context, filter shop.ProductFilter) ([]shop.Product, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var products []shop.Product
	err := applyProductFilter(db.Model(&shop.Product{}), filter).
		Order(shop.OrderClause(filter.Ordering)).
		Find(&products).Error
	if err != nil {
		return nil, classify("list products", err)
	}
	return products, nil
}

// Latest returns the n most recently created non-archived products.
func (r *ProductRepository) Latest(ctx context.Context, n int) ([]shop.Product, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var products []shop.Product
	err := db.Where("archieved = ?", false).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&products).Error
	if err != nil {
		return nil, classify("list latest products", err)
	}
	return products, nil
}

// FindByIDs returns the products with the given ids ordered by id.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []uint) ([]shop.Product, error) {
	if len(ids) == 0 {
		return []shop.Product{}, nil
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	var products []shop.Product
	if err := db.Where("id IN ?", ids).Order("id ASC").Find(&products).Error; err != nil {
		return nil, classify("find products", err)
	}
	return products, nil
}
