package store

import (
	"context"
	"slices"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/shop"
	"gorm.io/gorm"
)

// OrderRepository provides access to orders and their product links.
type OrderRepository struct {
	base
}

// Get returns an order with its product ids.
func (r *OrderRepository) Get(ctx context.Context, id uint) (*shop.Order, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var order shop.Order
	if err := db.First(&order, id).Error; err != nil {
		return nil, classify("find order", err)
	}

	orders := []shop.Order{order}
	if err := attachProductIDs(db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns a page of orders, newest id last.
func (r *OrderRepository) List(ctx context.Context, filter shop.OrderFilter) (*shop.Page[shop.Order], error) {
	if filter.Page < 0 {
		return nil, ErrInvalidPage
	}
	if filter.Page == 0 {
		filter.Page = 1
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	query := db.Model(&shop.Order{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	query = query.Session(&gorm.Session{})

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, classify("count orders", err)
	}

	numPages := shop.NumPages(count)
	if filter.Page > numPages {
		return nil, ErrInvalidPage
	}

	var orders []shop.Order
	err := query.Order("id ASC").
		Offset(shop.Offset(filter.Page)).
		Limit(shop.PageSize).
		Find(&orders).Error
	if err != nil {
		return nil, classify("list orders", err)
	}
	if err := attachProductIDs(db, orders); err != nil {
		return nil, err
	}

	return &shop.Page[shop.Order]{
		Items:    orders,
		Page:     filter.Page,
		Count:    count,
		NumPages: numPages,
		HasNext:  filter.Page < numPages,
		HasPrev:  filter.Page > 1,
	}, nil
}

// Create stores an order and its product links in one transaction. The
// owning user and every referenced product must exist.
func (r *OrderRepository) Create(ctx context.Context, fields shop.OrderFields) (*shop.Order, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	productIDs := uniqueIDs(fields.ProductIDs)
	order := &shop.Order{
		DeliveryAddress: fields.DeliveryAddress,
		Promocode:       fields.Promocode,
		UserID:          fields.UserID,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := checkReferences(tx, fields.UserID, productIDs); err != nil {
			return err
		}
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return linkProducts(tx, order.ID, productIDs)
	})
	if err != nil {
		return nil, classify("create order", err)
	}

	order.ProductIDs = productIDs
	return order, nil
}

// Update overwrites an order's fields and replaces its product links.
func (r *OrderRepository) Update(ctx context.Context, id uint, fields shop.OrderFields) (*shop.Order, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	productIDs := uniqueIDs(fields.ProductIDs)
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing shop.Order
		if err := tx.Select("id").First(&existing, id).Error; err != nil {
			return err
		}
		if err := checkReferences(tx, fields.UserID, productIDs); err != nil {
			return err
		}
		err := tx.Model(&shop.Order{}).Where("id = ?", id).Updates(map[string]any{
			"delivery_address": fields.DeliveryAddress,
			"promocode":        fields.Promocode,
			"user_id":          fields.UserID,
		}).Error
		if err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", id).Delete(&shop.OrderProduct{}).Error; err != nil {
			return err
		}
		return linkProducts(tx, id, productIDs)
	})
	if err != nil {
		return nil, classify("update order", err)
	}
	return r.Get(ctx, id)
}

// Delete removes an order and its product links.
func (r *OrderRepository) Delete(ctx context.Context, id uint) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&shop.OrderProduct{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&shop.Order{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	return classify("delete order", err)
}

// SetReceipt stores the media key of the order receipt.
func (r *OrderRepository) SetReceipt(ctx context.Context, id uint, key string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Model(&shop.Order{}).Where("id = ?", id).Update("receipt", key)
	if err := result.Error; err != nil {
		return classify("set order receipt", err)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AllByPK returns every order with product ids, ordered by primary key.
func (r *OrderRepository) AllByPK(ctx context.Context) ([]shop.Order, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var orders []shop.Order
	if err := db.Order("id ASC").Find(&orders).Error; err != nil {
		return nil, classify("list orders", err)
	}
	if err := attachProductIDs(db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByUser returns every order owned by userID ordered by primary key.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uint) ([]shop.Order, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var orders []shop.Order
	if err := db.Where("user_id = ?", userID).Order("id ASC").Find(&orders).Error; err != nil {
		return nil, classify("list user orders", err)
	}
	if err := attachProductIDs(db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Count returns the total number of orders.
func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var count int64
	if err := db.Model(&shop.Order{}).Count(&count).Error; err != nil {
		return 0, classify("count orders", err)
	}
	return count, nil
}

func checkReferences(tx *gorm.DB, userID uint, productIDs []uint) error {
	var users int64
	if err := tx.Model(&account.User{}).Where("id = ?", userID).Count(&users).Error; err != nil {
		return err
	}
	if users == 0 {
		return integrityError("user %d does not exist", userID)
	}

	if len(productIDs) == 0 {
		return nil
	}
	var products int64
	if err := tx.Model(&shop.Product{}).Where("id IN ?", productIDs).Count(&products).Error; err != nil {
		return err
	}
	if products != int64(len(productIDs)) {
		return integrityError("order references unknown products")
	}
	return nil
}

func linkProducts(tx *gorm.DB, orderID uint, productIDs []uint) error {
	if len(productIDs) == 0 {
		return nil
	}
	links := make([]shop.OrderProduct, 0, len(productIDs))
	for _, pid := range productIDs {
		links = append(links, shop.OrderProduct{OrderID: orderID, ProductID: pid})
	}
	return tx.Create(&links).Error
}

// attachProductIDs loads the product links of orders with one query.
func attachProductIDs(db *gorm.DB, orders []shop.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(orders))
	index := make(map[uint]int, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		index[orders[i].ID] = i
		orders[i].ProductIDs = []uint{}
	}

	var links []shop.OrderProduct
	err := db.Where("order_id IN ?", ids).
		Order("order_id ASC, product_id ASC").
		Find(&links).Error
	if err != nil {
		return classify("load order products", err)
	}

	for _, link := range links {
		i := index[link.OrderID]
		orders[i].ProductIDs = append(orders[i].ProductIDs, link.ProductID)
	}
	return nil
}

func uniqueIDs(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
