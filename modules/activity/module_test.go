package activity

import (
	"context"
	"testing"

	"github.com/example/shop-monolith/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_RecordsEvents(t *testing.T) {
	m := NewModule(0)
	ctx := context.Background()

	require.NoError(t, m.handleProductCreated(ctx, events.ProductCreatedEvent{ProductID: 1, Name: "Chair", Price: "49.99", CreatedByID: 7}, nil))
	require.NoError(t, m.handleOrderCreated(ctx, events.OrderCreatedEvent{OrderID: 3, UserID: 7, ActorID: 7, ProductIDs: []uint{1, 2}}, nil))
	require.NoError(t, m.handleProductArchived(ctx, events.ProductArchivedEvent{ProductID: 1, ActorID: 7, Archived: true}, nil))

	recent := m.Recent(10, "")
	require.Len(t, recent, 3)
	assert.Equal(t, "product_archived", recent[0].Type)
	assert.Equal(t, "order_created", recent[1].Type)
	assert.Equal(t, "Order 3 placed for user 7 with 2 products", recent[1].Message)
	assert.Equal(t, "product:1", recent[2].Subject)
	assert.EqualValues(t, 7, recent[2].ActorID)
	assert.Greater(t, recent[0].ID, recent[2].ID)
}

func TestModule_RecentFiltersByPrefix(t *testing.T) {
	m := NewModule(0)
	ctx := context.Background()

	_ = m.handleUserRegistered(ctx, events.UserRegisteredEvent{UserID: 1, Username: "ann"}, nil)
	_ = m.handleOrderDeleted(ctx, events.OrderDeletedEvent{OrderID: 9, ActorID: 1}, nil)
	_ = m.handleUserDeleted(ctx, events.UserDeletedEvent{UserID: 1, ActorID: 2}, nil)

	users := m.Recent(10, "user:")
	require.Len(t, users, 2)
	assert.Equal(t, "user_deleted", users[0].Type)
	assert.Equal(t, "user_registered", users[1].Type)

	assert.Len(t, m.Recent(1, ""), 1)
}

func TestModule_CapacityDropsOldest(t *testing.T) {
	m := NewModule(2)
	ctx := context.Background()

	for i := uint(1); i <= 3; i++ {
		_ = m.handleProductUpdated(ctx, events.ProductUpdatedEvent{ProductID: i}, nil)
	}
	_ = m.handleProductArchived(ctx, events.ProductArchivedEvent{ProductID: 1, Archived: false}, nil)

	recent := m.Recent(10, "")
	require.Len(t, recent, 2)
	assert.Equal(t, "product_restored", recent[0].Type)
	assert.Equal(t, "product:3", recent[1].Subject)

	counts := m.Counts()
	assert.EqualValues(t, 3, counts["product_updated"], "counts survive eviction")
	assert.EqualValues(t, 1, counts["product_restored"])
}
