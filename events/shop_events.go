package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// ProductCreatedEvent is emitted when a product is added to the catalog.
type ProductCreatedEvent struct {
	ProductID   uint      `json:"product_id"`
	Name        string    `json:"name"`
	Price       string    `json:"price"`
	CreatedByID uint      `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductCreatedV1 is the typed event definition for product creation.
// Subject: events.shop.v1.product-created
var ProductCreatedV1 = helper.EventDefinition[ProductCreatedEvent](
	"shop", "ProductCreated", "v1",
)

// ProductUpdatedEvent is emitted when a product's fields change.
type ProductUpdatedEvent struct {
	ProductID uint      `json:"product_id"`
	ActorID   uint      `json:"actor_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductUpdatedV1 is the typed event definition for product updates.
var ProductUpdatedV1 = helper.EventDefinition[ProductUpdatedEvent](
	"shop", "ProductUpdated", "v1",
)

// ProductArchivedEvent is emitted when a product is archived or restored.
type ProductArchivedEvent struct {
	ProductID uint      `json:"product_id"`
	ActorID   uint      `json:"actor_id"`
	Archived  bool      `json:"archived"`
	ChangedAt time.Time `json:"changed_at"`
}

// ProductArchivedV1 is the typed event definition for archive flag changes.
var ProductArchivedV1 = helper.EventDefinition[ProductArchivedEvent](
	"shop", "ProductArchived", "v1",
)

// OrderCreatedEvent is emitted when an order is placed.
type OrderCreatedEvent struct {
	OrderID    uint      `json:"order_id"`
	UserID     uint      `json:"user_id"`
	ActorID    uint      `json:"actor_id"`
	ProductIDs []uint    `json:"product_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderCreatedV1 is the typed event definition for order creation.
var OrderCreatedV1 = helper.EventDefinition[OrderCreatedEvent](
	"shop", "OrderCreated", "v1",
)

// OrderDeletedEvent is emitted when an order is removed.
type OrderDeletedEvent struct {
	OrderID   uint      `json:"order_id"`
	ActorID   uint      `json:"actor_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// OrderDeletedV1 is the typed event definition for order deletion.
var OrderDeletedV1 = helper.EventDefinition[OrderDeletedEvent](
	"shop", "OrderDeleted", "v1",
)
