package throttle

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// GlobalKey is the counter key when requests are not keyed by address.
const GlobalKey = "all"

// Stats are the request totals seen by the middleware.
type Stats struct {
	Requests   int64 `json:"requests"`
	Responses  int64 `json:"responses"`
	Exceptions int64 `json:"exceptions"`
	Throttled  int64 `json:"throttled"`
}

// Middleware rejects requests above the configured rate and keeps totals.
type Middleware struct {
	counter Counter
	config  Config

	requests   *xsync.Counter
	responses  *xsync.Counter
	exceptions *xsync.Counter
	throttled  *xsync.Counter
}

// NewMiddleware creates the middleware around counter.
func NewMiddleware(counter Counter, config Config) *Middleware {
	return &Middleware{
		counter:    counter,
		config:     config,
		requests:   xsync.NewCounter(),
		responses:  xsync.NewCounter(),
		exceptions: xsync.NewCounter(),
		throttled:  xsync.NewCounter(),
	}
}

// Handler returns the Fiber handler. Counter failures are logged and let
// the request through.
func (m *Middleware) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		m.requests.Inc()

		key := m.key(c)
		result, err := m.counter.Allow(c.UserContext(), key)
		if err != nil {
			log.Printf("[throttle] Counter failed for key %s, allowing request: %v", key, err)
		} else {
			setRateLimitHeaders(c, result, m.config.Limit)
			if !result.Allowed {
				m.throttled.Inc()
				return sendTooOften(c, result)
			}
		}

		if err := c.Next(); err != nil {
			m.exceptions.Inc()
			return err
		}
		m.responses.Inc()
		return nil
	}
}

func (m *Middleware) key(c *fiber.Ctx) string {
	if m.config.PerIP {
		if ip := c.IP(); ip != "" {
			return "ip:" + ip
		}
	}
	return GlobalKey
}

// Counter returns the underlying counter.
func (m *Middleware) Counter() Counter {
	return m.counter
}

// Stats returns the current totals.
func (m *Middleware) Stats() Stats {
	return Stats{
		Requests:   m.requests.Value(),
		Responses:  m.responses.Value(),
		Exceptions: m.exceptions.Value(),
		Throttled:  m.throttled.Value(),
	}
}

// ResetStats zeroes the totals. Counter windows are left alone.
func (m *Middleware) ResetStats() {
	m.requests.Reset()
	m.responses.Reset()
	m.exceptions.Reset()
	m.throttled.Reset()
}

func setRateLimitHeaders(c *fiber.Ctx, result *Result, limit int) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func sendTooOften(c *fiber.Ctx, result *Result) error {
	retryAfter := int(result.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Set("Retry-After", strconv.Itoa(retryAfter))

	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":   "too_often",
		"message": "You are refreshing the page too often!",
	})
}
