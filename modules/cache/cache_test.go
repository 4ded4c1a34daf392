package cache

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/storage/redis/v3"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService() (*Service, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewService(NewMemoryBackend(clock.Now)), clock
}

func TestUserOrdersExportKey(t *testing.T) {
	if got := UserOrdersExportKey(42); got != "orders_data_export:user:42" {
		t.Errorf("UserOrdersExportKey(42) = %q", got)
	}
	if UserOrdersExportKey(1) == UserOrdersExportKey(2) {
		t.Error("keys of different users must differ")
	}
}

func TestService_WithinTTLIsByteIdentical(t *testing.T) {
	svc, clock := newTestService()
	ctx := context.Background()

	// the backing data changes between calls
	payload := `{"products":[{"pk":1,"name":"Chair","price":"49.99","archieved":false}]}`
	compute := func(context.Context) ([]byte, error) { return []byte(payload), nil }

	first, err := svc.GetOrCompute(ctx, ProductsExportKey, DefaultExportTTL, compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}

	payload = `{"products":[]}`
	clock.Advance(DefaultExportTTL - time.Second)

	second, err := svc.GetOrCompute(ctx, ProductsExportKey, DefaultExportTTL, compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("second call = %s, want cached %s", second, first)
	}

	clock.Advance(time.Second)

	third, err := svc.GetOrCompute(ctx, ProductsExportKey, DefaultExportTTL, compute)
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if string(third) != `{"products":[]}` {
		t.Errorf("call after TTL = %s, want fresh payload", third)
	}

	stats := svc.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Sets != 2 {
		t.Errorf("Stats() = %+v, want 1 hit, 2 misses, 2 sets", stats)
	}
}

func TestService_ComputeErrorStoresNothing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	boom := errors.New("db down")

	_, err := svc.GetOrCompute(ctx, OrdersExportKey, time.Minute, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrCompute() error = %v, want %v", err, boom)
	}

	calls := 0
	data, err := svc.GetOrCompute(ctx, OrdersExportKey, time.Minute, func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"orders":[]}`), nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if calls != 1 || string(data) != `{"orders":[]}` {
		t.Errorf("expected a fresh compute after a failed one, calls=%d data=%s", calls, data)
	}
}

func TestService_KeysAreIndependent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, _ := svc.GetOrCompute(ctx, UserOrdersExportKey(1), time.Minute, func(context.Context) ([]byte, error) {
		return []byte("user-1"), nil
	})
	b, _ := svc.GetOrCompute(ctx, UserOrdersExportKey(2), time.Minute, func(context.Context) ([]byte, error) {
		return []byte("user-2"), nil
	})
	if string(a) == string(b) {
		t.Errorf("per-user exports collided: %s", a)
	}
}

func TestService_ConcurrentMissesShareCompute(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("payload"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := svc.GetOrCompute(ctx, ProductsExportKey, time.Minute, compute)
			if err != nil || string(data) != "payload" {
				t.Errorf("GetOrCompute() = %s, %v", data, err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("compute called %d times, want 1", n)
	}
}

func TestMemoryBackend_ExpiredEntryRemoved(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := NewMemoryBackend(clock.Now)
	ctx := context.Background()

	if err := b.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	clock.Advance(2 * time.Second)

	if _, found, _ := b.Get(ctx, "k"); found {
		t.Error("expired entry still served")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after lazy expiry", b.Len())
	}
}

func TestPluginModule_MemoryHealth(t *testing.T) {
	m := NewPluginModule(Config{})
	if m.Name() != "cache" {
		t.Errorf("Name() = %q, want cache", m.Name())
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop(context.Background())

	health := m.Health(context.Background())
	if !health.Healthy {
		t.Errorf("Health() = %+v, want healthy", health)
	}
	if health.Details["backend"] != "memory" {
		t.Errorf("backend = %v, want memory", health.Details["backend"])
	}
}

func TestParseRedisAddr(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
	}{
		{"localhost:6379", "localhost", 6379},
		{":6380", "127.0.0.1", 6380},
		{"garbage", "127.0.0.1", 6379},
		{"redis:abc", "redis", 6379},
	}
	for _, tt := range tests {
		host, port := parseRedisAddr(tt.addr)
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("parseRedisAddr(%q) = %s:%d, want %s:%d", tt.addr, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

const testRedisAddr = "localhost:6379"

// checkRedisAvailable skips the test when Redis is not reachable.
// gofiber/storage/redis panics on connection failure, so we check first.
func checkRedisAvailable(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testRedisAddr, 2*time.Second)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	conn.Close()
}

func TestStorageBackend_Redis(t *testing.T) {
	checkRedisAvailable(t)

	store := redis.New(redis.Config{Host: "localhost", Port: 6379})
	backend := NewStorageBackend(store, "test:export:")
	defer func() {
		_ = backend.Delete(context.Background(), ProductsExportKey)
		_ = backend.Close()
	}()

	svc := NewService(backend)
	ctx := context.Background()

	first, err := svc.GetOrCompute(ctx, ProductsExportKey, time.Minute, func(context.Context) ([]byte, error) {
		return []byte("one"), nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	second, err := svc.GetOrCompute(ctx, ProductsExportKey, time.Minute, func(context.Context) ([]byte, error) {
		return []byte("two"), nil
	})
	if err != nil {
		t.Fatalf("GetOrCompute() error = %v", err)
	}
	if string(first) != "one" || string(second) != "one" {
		t.Errorf("got %s then %s, want one twice", first, second)
	}
}
