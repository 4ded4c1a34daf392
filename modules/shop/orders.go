package shop

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/authz"
	domain "github.com/example/shop-monolith/domain/shop"
	"github.com/example/shop-monolith/events"
	"github.com/example/shop-monolith/modules/store"
)

// ListOrders returns a page of all orders. Any signed-in actor may list.
func (s *Service) ListOrders(ctx context.Context, actor *account.Actor, page int) (*domain.Page[domain.Order], error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	return s.orders.List(ctx, domain.OrderFilter{Page: page})
}

// GetOrder returns one order to holders of view_order.
func (s *Service) GetOrder(ctx context.Context, actor *account.Actor, id uint) (*domain.Order, error) {
	if err := authz.CanViewOrder(actor, nil).Err(); err != nil {
		return nil, err
	}
	return s.orders.Get(ctx, id)
}

// CreateOrder places an order for in.UserID, or for the actor when unset.
func (s *Service) CreateOrder(ctx context.Context, actor *account.Actor, in OrderInput) (*domain.Order, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	if in.UserID == 0 {
		in.UserID = actor.ID
	}
	if err := authz.CanCreateOrderFor(actor, in.UserID).Err(); err != nil {
		return nil, err
	}
	if err := s.validateOrder(ctx, in); err != nil {
		return nil, err
	}

	order, err := s.orders.Create(ctx, in.fields())
	if err != nil {
		return nil, err
	}

	if s.bus != nil {
		event := events.OrderCreatedEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			ActorID:    actor.ID,
			ProductIDs: order.ProductIDs,
			CreatedAt:  order.CreatedAt,
		}
		if err := events.OrderCreatedV1.Publish(s.bus, event, nil); err != nil {
			log.Printf("[shop] Warning: failed to publish OrderCreated event for order %d: %v", order.ID, err)
		}
	}
	return order, nil
}

// UpdateOrder overwrites an order. Any signed-in actor may update any order.
func (s *Service) UpdateOrder(ctx context.Context, actor *account.Actor, id uint, in OrderInput) (*domain.Order, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	existing, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.UserID == 0 {
		in.UserID = existing.UserID
	}
	if err := s.validateOrder(ctx, in); err != nil {
		return nil, err
	}
	return s.orders.Update(ctx, id, in.fields())
}

// DeleteOrder removes an order. Any signed-in actor may delete any order.
func (s *Service) DeleteOrder(ctx context.Context, actor *account.Actor, id uint) error {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return err
	}

	if s.bus != nil {
		event := events.OrderDeletedEvent{OrderID: id, ActorID: actor.ID, DeletedAt: s.now()}
		if err := events.OrderDeletedV1.Publish(s.bus, event, nil); err != nil {
			log.Printf("[shop] Warning: failed to publish OrderDeleted event for order %d: %v", id, err)
		}
	}
	return nil
}

// AttachReceipt stores a receipt file for an order. The order's owner and
// staff may attach one.
func (s *Service) AttachReceipt(ctx context.Context, actor *account.Actor, id uint, upload Upload) (*domain.Order, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CanManageUser(actor, order.UserID).Err(); err != nil {
		return nil, err
	}
	if s.media == nil {
		return nil, ErrMediaUnavailable
	}

	key, err := s.media.Store(ctx, ReceiptsBucket, upload.Filename, upload.ContentType, upload.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store receipt: %w", err)
	}
	if err := s.orders.SetReceipt(ctx, id, key); err != nil {
		return nil, err
	}
	order.Receipt = key
	return order, nil
}

// UserOrders is the order list of one user.
type UserOrders struct {
	UserID uint           `json:"user_id"`
	Orders []domain.Order `json:"object_list"`
}

// ListUserOrders returns the orders of userID to any signed-in actor.
func (s *Service) ListUserOrders(ctx context.Context, actor *account.Actor, userID uint) (*UserOrders, error) {
	if err := authz.RequireAuthenticated(actor).Err(); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserOrders{UserID: userID, Orders: orders}, nil
}

// validateOrder checks the payload and that the referenced user and
// products exist, reporting missing ones as field errors.
func (s *Service) validateOrder(ctx context.Context, in OrderInput) error {
	if err := toValidationError(in.Validate()); err != nil {
		return err
	}
	if err := s.requireUser(ctx, in.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ValidationError{Fields: map[string]string{"user": "select a valid choice"}}
		}
		return err
	}

	if len(in.Products) == 0 {
		return nil
	}
	found, err := s.products.FindByIDs(ctx, in.Products)
	if err != nil {
		return err
	}
	known := make(map[uint]bool, len(found))
	for _, p := range found {
		known[p.ID] = true
	}
	for _, id := range in.Products {
		if !known[id] {
			return &ValidationError{Fields: map[string]string{
				"products": fmt.Sprintf("select a valid choice, %d is not one of the available choices", id),
			}}
		}
	}
	return nil
}

func (s *Service) requireUser(ctx context.Context, userID uint) error {
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}
