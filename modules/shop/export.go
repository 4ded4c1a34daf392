package shop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/modules/cache"
)

type productExportRow struct {
	PK       uint   `json:"pk"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Archived bool   `json:"archieved"`
}

type orderExportRow struct {
	PK              uint   `json:"pk"`
	DeliveryAddress string `json:"delivery_address"`
	Promocode       string `json:"promocode"`
	UserID          uint   `json:"user_id"`
	Products        []uint `json:"products"`
}

type userOrderExportRow struct {
	ID              uint      `json:"id"`
	DeliveryAddress string    `json:"delivery_address"`
	Promocode       string    `json:"promocode"`
	UserID          uint      `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExportProducts returns every product as {"products":[...]} ordered by
// pk. The payload is cached for the export TTL.
func (s *Service) ExportProducts(ctx context.Context) ([]byte, error) {
	return s.exports.GetOrCompute(ctx, cache.ProductsExportKey, s.cfg.ExportTTL, func(ctx context.Context) ([]byte, error) {
		products, err := s.products.AllByPK(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]productExportRow, 0, len(products))
		for _, p := range products {
			rows = append(rows, productExportRow{
				PK:       p.ID,
				Name:     p.Name,
				Price:    p.Price.StringFixed(2),
				Archived: p.Archived,
			})
		}
		return marshalExport("products", rows)
	})
}

// ExportOrders returns every order with its product pks to staff. The
// payload is cached for the export TTL under one key shared by all staff, so
// orders written within the TTL are missing until the entry expires. The
// export matches the order count only when it was computed on a miss.
func (s *Service) ExportOrders(ctx context.Context, actor *account.Actor) ([]byte, error) {
	if err := authz.CanExportOrders(actor).Err(); err != nil {
		return nil, err
	}
	return s.exports.GetOrCompute(ctx, cache.OrdersExportKey, s.cfg.ExportTTL, func(ctx context.Context) ([]byte, error) {
		orders, err := s.orders.AllByPK(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]orderExportRow, 0, len(orders))
		for _, o := range orders {
			rows = append(rows, orderExportRow{
				PK:              o.ID,
				DeliveryAddress: o.DeliveryAddress,
				Promocode:       o.Promocode,
				UserID:          o.UserID,
				Products:        o.ProductIDs,
			})
		}
		return marshalExport("orders", rows)
	})
}

// ExportUserOrders returns the orders of one user. The user themselves,
// staff and superusers may export; an unknown user is ErrNotFound. Each user
// has their own cache entry.
func (s *Service) ExportUserOrders(ctx context.Context, actor *account.Actor, userID uint) ([]byte, error) {
	if err := authz.CanManageUser(actor, userID).Err(); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.exports.GetOrCompute(ctx, cache.UserOrdersExportKey(userID), s.cfg.ExportTTL, func(ctx context.Context) ([]byte, error) {
		orders, err := s.orders.ListByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		rows := make([]userOrderExportRow, 0, len(orders))
		for _, o := range orders {
			rows = append(rows, userOrderExportRow{
				ID:              o.ID,
				DeliveryAddress: o.DeliveryAddress,
				Promocode:       o.Promocode,
				UserID:          o.UserID,
				CreatedAt:       o.CreatedAt,
			})
		}
		return marshalExport("orders", rows)
	})
}

func marshalExport[T any](name string, rows []T) ([]byte, error) {
	data, err := json.Marshal(map[string][]T{name: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s export: %w", name, err)
	}
	return data, nil
}
