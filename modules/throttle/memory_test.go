package throttle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func TestMemoryCounter_DefaultLimit(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultConfig()
	counter := NewMemoryCounter(cfg.Limit, cfg.Window, clock.Now)
	ctx := context.Background()

	for i := 1; i <= 54; i++ {
		res, err := counter.Allow(ctx, GlobalKey)
		require.NoError(t, err)
		require.True(t, res.Allowed, "request %d should be allowed", i)
		clock.Advance(time.Second)
	}

	res, err := counter.Allow(ctx, GlobalKey)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "the 55th request inside the window is rejected")
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 6*time.Second, res.RetryAfter)

	res, _ = counter.Allow(ctx, GlobalKey)
	assert.False(t, res.Allowed, "later requests in the same window are rejected too")
}

func TestMemoryCounter_NewWindowAfterPeriod(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(2, time.Minute, clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = counter.Allow(ctx, "k")
	}
	clock.Advance(time.Minute)

	res, err := counter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Count, "the window restarts with a count of one")
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)
}

func TestMemoryCounter_Reset(t *testing.T) {
	clock := newFakeClock()
	counter := NewMemoryCounter(1, time.Minute, clock.Now)
	ctx := context.Background()

	res, _ := counter.Allow(ctx, "k")
	assert.True(t, res.Allowed)
	res, _ = counter.Allow(ctx, "k")
	assert.False(t, res.Allowed)

	require.NoError(t, counter.Reset(ctx, "k"))
	res, _ = counter.Allow(ctx, "k")
	assert.True(t, res.Allowed)
}

func TestMemoryCounter_KeysAreIndependent(t *testing.T) {
	counter := NewMemoryCounter(1, time.Minute, nil)
	ctx := context.Background()

	res, _ := counter.Allow(ctx, "a")
	assert.True(t, res.Allowed)
	res, _ = counter.Allow(ctx, "b")
	assert.True(t, res.Allowed)
	res, _ = counter.Allow(ctx, "a")
	assert.False(t, res.Allowed)
}

func TestMemoryCounter_Concurrent(t *testing.T) {
	counter := NewMemoryCounter(100, time.Minute, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _ := counter.Allow(ctx, GlobalKey)
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, allowed)
}
