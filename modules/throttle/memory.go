package throttle

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type window struct {
	start time.Time
	count int
}

// MemoryCounter is a fixed-window counter kept in process memory. A window
// opens at the first request for a key; the first request after it elapsed
// opens a new window with a count of one.
type MemoryCounter struct {
	limit   int
	period  time.Duration
	windows *xsync.MapOf[string, window]
	now     func() time.Time
}

// NewMemoryCounter creates a counter allowing limit requests per period.
// now defaults to time.Now.
func NewMemoryCounter(limit int, period time.Duration, now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{
		limit:   limit,
		period:  period,
		windows: xsync.NewMapOf[string, window](),
		now:     now,
	}
}

// Allow counts one request for key.
func (c *MemoryCounter) Allow(_ context.Context, key string) (*Result, error) {
	now := c.now()
	allowed := false

	w, _ := c.windows.Compute(key, func(old window, loaded bool) (window, bool) {
		if !loaded || now.Sub(old.start) >= c.period {
			old = window{start: now}
		}
		if old.count < c.limit {
			old.count++
			allowed = true
		}
		return old, false
	})

	resetAt := w.start.Add(c.period)
	res := &Result{
		Allowed:   allowed,
		Count:     w.count,
		Remaining: max(c.limit-w.count, 0),
		ResetAt:   resetAt,
	}
	if !allowed {
		res.RetryAfter = resetAt.Sub(now)
	}
	return res, nil
}

// Reset clears the window of key.
func (c *MemoryCounter) Reset(_ context.Context, key string) error {
	c.windows.Delete(key)
	return nil
}
