package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-monolith/mono/pkg/storage"
	"github.com/puzpuzpuz/xsync/v3"
)

// Backend stores raw bytes with an expiry.
type Backend interface {
	// Get returns the stored bytes, or found=false when the key is missing
	// or expired.
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Kind() string
	Close() error
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryBackend is a process-wide map of entries. Expired entries are
// dropped lazily on read.
type MemoryBackend struct {
	entries *xsync.MapOf[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryBackend creates a memory backend reading time from now. A nil now
// uses time.Now.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		entries: xsync.NewMapOf[string, memoryEntry](),
		now:     now,
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := b.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	if !b.now().Before(entry.expiresAt) {
		b.entries.Compute(key, func(old memoryEntry, loaded bool) (memoryEntry, bool) {
			// keep a fresher value stored by a concurrent Set
			return old, !loaded || !b.now().Before(old.expiresAt)
		})
		return nil, false, nil
	}
	return entry.data, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	stored := make([]byte, len(data))
	copy(stored, data)
	b.entries.Store(key, memoryEntry{data: stored, expiresAt: b.now().Add(ttl)})
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.entries.Delete(key)
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (b *MemoryBackend) Len() int {
	return b.entries.Size()
}

func (b *MemoryBackend) Kind() string { return "memory" }

func (b *MemoryBackend) Close() error {
	b.entries.Clear()
	return nil
}

// StorageBackend adapts a mono storage (for example gofiber's Redis
// storage) to Backend. Keys are namespaced with prefix.
type StorageBackend struct {
	storage storage.Storage
	prefix  string
}

// NewStorageBackend wraps s.
func NewStorageBackend(s storage.Storage, prefix string) *StorageBackend {
	return &StorageBackend{storage: s, prefix: prefix}
}

func (b *StorageBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.storage.GetWithContext(ctx, b.prefix+key)
	if err != nil {
		return nil, false, fmt.Errorf("cache get error: %w", err)
	}
	// nil or empty means key not found
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

func (b *StorageBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := b.storage.SetWithContext(ctx, b.prefix+key, data, ttl); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (b *StorageBackend) Delete(ctx context.Context, key string) error {
	if err := b.storage.DeleteWithContext(ctx, b.prefix+key); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (b *StorageBackend) Kind() string { return "redis" }

func (b *StorageBackend) Close() error {
	return b.storage.Close()
}
