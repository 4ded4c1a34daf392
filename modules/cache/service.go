// Package cache provides the short-TTL export cache: computed payloads are
// stored as bytes under a key and served unchanged until they expire.
package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Keys of the export payloads.
const (
	ProductsExportKey = "products_data_export"
	OrdersExportKey   = "orders_data_export"
)

// DefaultExportTTL is how long export payloads are served from the cache.
const DefaultExportTTL = 300 * time.Second

// UserOrdersExportKey returns the export key of one user's orders.
func UserOrdersExportKey(userID uint) string {
	return OrdersExportKey + ":user:" + strconv.FormatUint(uint64(userID), 10)
}

// ComputeFunc produces the payload for a missing key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// ExportCache is the port consumed by modules that cache computed payloads.
type ExportCache interface {
	// GetOrCompute returns the bytes stored under key, or calls compute,
	// stores its result for ttl and returns it. A compute error is returned
	// and nothing is stored.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error)
	Stats() StatsSnapshot
}

// StatsSnapshot is a point-in-time copy of the cache counters.
type StatsSnapshot struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Sets    uint64  `json:"sets"`
	Errors  uint64  `json:"errors"`
	HitRate float64 `json:"hit_rate"`
	Backend string  `json:"backend"`
}

// Service implements ExportCache over a Backend.
type Service struct {
	backend Backend
	group   singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	sets   atomic.Uint64
	errors atomic.Uint64
}

var _ ExportCache = (*Service)(nil)

// NewService creates a cache service over backend.
func NewService(backend Backend) *Service {
	return &Service{backend: backend}
}

// GetOrCompute implements ExportCache. Concurrent misses on the same key in
// this process share one compute call.
func (s *Service) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	data, found, err := s.backend.Get(ctx, key)
	if err != nil {
		s.errors.Add(1)
		return nil, err
	}
	if found {
		s.hits.Add(1)
		return data, nil
	}
	s.misses.Add(1)
	log.Printf("[cache] Cache Miss! key=%s", key)

	v, err, _ := s.group.Do(key, func() (any, error) {
		// another caller may have filled the key while we waited
		if data, found, err := s.backend.Get(ctx, key); err == nil && found {
			return data, nil
		}

		data, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.backend.Set(ctx, key, data, ttl); err != nil {
			s.errors.Add(1)
			return nil, err
		}
		s.sets.Add(1)
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute %s: %w", key, err)
	}
	return v.([]byte), nil
}

// Stats returns the current counters.
func (s *Service) Stats() StatsSnapshot {
	hits := s.hits.Load()
	misses := s.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return StatsSnapshot{
		Hits:    hits,
		Misses:  misses,
		Sets:    s.sets.Load(),
		Errors:  s.errors.Load(),
		HitRate: rate,
		Backend: s.backend.Kind(),
	}
}

// Close releases the backend.
func (s *Service) Close() error {
	return s.backend.Close()
}
