package throttle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCounter implements Counter with function fields.
type mockCounter struct {
	allowFunc func(ctx context.Context, key string) (*Result, error)
	resetFunc func(ctx context.Context, key string) error
}

func (m *mockCounter) Allow(ctx context.Context, key string) (*Result, error) {
	return m.allowFunc(ctx, key)
}

func (m *mockCounter) Reset(ctx context.Context, key string) error {
	if m.resetFunc == nil {
		return nil
	}
	return m.resetFunc(ctx, key)
}

func setupTestApp(mw *Middleware) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(mw.Handler())
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "boom")
	})
	return app
}

func TestMiddleware_RejectsAboveLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Limit = 2
	mw := NewMiddleware(NewMemoryCounter(cfg.Limit, cfg.Window, nil), cfg)
	app := setupTestApp(mw)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	body, _ := io.ReadAll(resp.Body)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "too_often", payload["error"])
	assert.Equal(t, "You are refreshing the page too often!", payload["message"])

	stats := mw.Stats()
	assert.EqualValues(t, 3, stats.Requests)
	assert.EqualValues(t, 2, stats.Responses)
	assert.EqualValues(t, 1, stats.Throttled)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	counter := &mockCounter{
		allowFunc: func(ctx context.Context, key string) (*Result, error) {
			return nil, errors.New("redis down")
		},
	}
	mw := NewMiddleware(counter, DefaultConfig())
	app := setupTestApp(mw)

	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	resp, err := app.Test(httptest.NewRequest("GET", "/ok", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-RateLimit-Error"))
	assert.Empty(t, resp.Header.Get("X-RateLimit-Remaining"))
	assert.Contains(t, logs.String(), "[throttle] Counter failed for key all")
	assert.Contains(t, logs.String(), "redis down")
}

func TestMiddleware_CountsExceptions(t *testing.T) {
	mw := NewMiddleware(NewMemoryCounter(10, time.Minute, nil), DefaultConfig())
	app := setupTestApp(mw)

	resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	stats := mw.Stats()
	assert.EqualValues(t, 1, stats.Exceptions)
	assert.EqualValues(t, 0, stats.Responses)

	mw.ResetStats()
	assert.Equal(t, Stats{}, mw.Stats())
}

func TestMiddleware_KeyByIP(t *testing.T) {
	var keys []string
	counter := &mockCounter{
		allowFunc: func(ctx context.Context, key string) (*Result, error) {
			keys = append(keys, key)
			return &Result{Allowed: true, Remaining: 1, ResetAt: time.Now()}, nil
		},
	}

	global := setupTestApp(NewMiddleware(counter, DefaultConfig()))
	_, err := global.Test(httptest.NewRequest("GET", "/ok", nil), -1)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PerIP = true
	perIP := setupTestApp(NewMiddleware(counter, cfg))
	_, err = perIP.Test(httptest.NewRequest("GET", "/ok", nil), -1)
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.Equal(t, GlobalKey, keys[0])
	assert.Contains(t, keys[1], "ip:")
}

func TestNewModule_Backends(t *testing.T) {
	m, err := NewModule()
	require.NoError(t, err)
	assert.IsType(t, &MemoryCounter{}, m.Middleware().Counter())

	m, err = NewModule(WithBackend(BackendRedis), WithRedisAddr("localhost:6390"))
	require.NoError(t, err)
	assert.IsType(t, &RedisCounter{}, m.Middleware().Counter())
	require.NoError(t, m.Stop(context.Background()))

	_, err = NewModule(WithBackend("etcd"))
	assert.Error(t, err)

	_, err = NewModule(WithLimit(0, time.Minute))
	assert.Error(t, err)
}
