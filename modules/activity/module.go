// Package activity keeps an in-memory audit trail of shop and account events.
package activity

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/example/shop-monolith/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultCapacity bounds the number of retained entries.
const DefaultCapacity = 500

// Entry is one audited event.
type Entry struct {
	ID        uint64    `json:"id"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	ActorID   uint      `json:"actor_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Module consumes domain events and records them.
type Module struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	seq      uint64
	counts   *xsync.MapOf[string, *xsync.Counter]
	now      func() time.Time
}

var _ mono.Module = (*Module)(nil)
var _ mono.EventConsumerModule = (*Module)(nil)

// NewModule creates an activity module keeping at most capacity entries.
func NewModule(capacity int) *Module {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Module{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		counts:   xsync.NewMapOf[string, *xsync.Counter](),
		now:      time.Now,
	}
}

func (m *Module) Name() string {
	return "activity"
}

func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.ProductCreatedV1, m.handleProductCreated, m); err != nil {
		return fmt.Errorf("failed to register ProductCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ProductUpdatedV1, m.handleProductUpdated, m); err != nil {
		return fmt.Errorf("failed to register ProductUpdated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.ProductArchivedV1, m.handleProductArchived, m); err != nil {
		return fmt.Errorf("failed to register ProductArchived consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.OrderCreatedV1, m.handleOrderCreated, m); err != nil {
		return fmt.Errorf("failed to register OrderCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.OrderDeletedV1, m.handleOrderDeleted, m); err != nil {
		return fmt.Errorf("failed to register OrderDeleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserRegisteredV1, m.handleUserRegistered, m); err != nil {
		return fmt.Errorf("failed to register UserRegistered consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserDeletedV1, m.handleUserDeleted, m); err != nil {
		return fmt.Errorf("failed to register UserDeleted consumer: %w", err)
	}

	log.Printf("[activity] Registered event consumers: ProductCreated, ProductUpdated, ProductArchived, OrderCreated, OrderDeleted, UserRegistered, UserDeleted")
	return nil
}

func (m *Module) handleProductCreated(_ context.Context, event events.ProductCreatedEvent, _ *mono.Msg) error {
	m.record("product_created", productSubject(event.ProductID), event.CreatedByID,
		fmt.Sprintf("Product '%s' created at %s", event.Name, event.Price))
	return nil
}

func (m *Module) handleProductUpdated(_ context.Context, event events.ProductUpdatedEvent, _ *mono.Msg) error {
	m.record("product_updated", productSubject(event.ProductID), event.ActorID,
		fmt.Sprintf("Product %d updated", event.ProductID))
	return nil
}

func (m *Module) handleProductArchived(_ context.Context, event events.ProductArchivedEvent, _ *mono.Msg) error {
	kind, verb := "product_archived", "archived"
	if !event.Archived {
		kind, verb = "product_restored", "restored"
	}
	m.record(kind, productSubject(event.ProductID), event.ActorID,
		fmt.Sprintf("Product %d %s", event.ProductID, verb))
	return nil
}

func (m *Module) handleOrderCreated(_ context.Context, event events.OrderCreatedEvent, _ *mono.Msg) error {
	m.record("order_created", orderSubject(event.OrderID), event.ActorID,
		fmt.Sprintf("Order %d placed for user %d with %d products", event.OrderID, event.UserID, len(event.ProductIDs)))
	return nil
}

func (m *Module) handleOrderDeleted(_ context.Context, event events.OrderDeletedEvent, _ *mono.Msg) error {
	m.record("order_deleted", orderSubject(event.OrderID), event.ActorID,
		fmt.Sprintf("Order %d deleted", event.OrderID))
	return nil
}

func (m *Module) handleUserRegistered(_ context.Context, event events.UserRegisteredEvent, _ *mono.Msg) error {
	m.record("user_registered", userSubject(event.UserID), event.UserID,
		fmt.Sprintf("User '%s' registered", event.Username))
	return nil
}

func (m *Module) handleUserDeleted(_ context.Context, event events.UserDeletedEvent, _ *mono.Msg) error {
	m.record("user_deleted", userSubject(event.UserID), event.ActorID,
		fmt.Sprintf("User %d deleted", event.UserID))
	return nil
}

func productSubject(id uint) string { return fmt.Sprintf("product:%d", id) }
func orderSubject(id uint) string   { return fmt.Sprintf("order:%d", id) }
func userSubject(id uint) string    { return fmt.Sprintf("user:%d", id) }

// record appends an entry, dropping the oldest when full.
func (m *Module) record(kind, subject string, actorID uint, message string) {
	counter, _ := m.counts.LoadOrCompute(kind, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	counter.Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	if len(m.entries) == m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, Entry{
		ID:        m.seq,
		Type:      kind,
		Subject:   subject,
		ActorID:   actorID,
		Message:   message,
		Timestamp: m.now(),
	})
}

// Recent returns up to limit entries, newest first. A non-empty prefix keeps
// only entries whose subject starts with it, e.g. "order:".
func (m *Module) Recent(limit int, prefix string) []Entry {
	if limit <= 0 {
		return []Entry{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Entry, 0, min(limit, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if prefix != "" && !strings.HasPrefix(m.entries[i].Subject, prefix) {
			continue
		}
		result = append(result, m.entries[i])
	}
	return result
}

// Counts returns how many events of each type were seen since start,
// including entries already dropped from the trail.
func (m *Module) Counts() map[string]int64 {
	counts := make(map[string]int64)
	m.counts.Range(func(kind string, c *xsync.Counter) bool {
		counts[kind] = c.Value()
		return true
	})
	return counts
}

func (m *Module) Start(_ context.Context) error {
	log.Println("[activity] Module started - listening for shop and account events")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	log.Println("[activity] Module stopped")
	return nil
}
