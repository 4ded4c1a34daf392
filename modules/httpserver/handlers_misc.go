package httpserver

import (
	"net/http"
	"sort"
	"time"

	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/modules/media"
	"github.com/example/shop-monolith/modules/shop"
	"github.com/example/shop-monolith/modules/throttle"
	"github.com/gofiber/fiber/v2"
)

// queryParams concatenates the a and b query parameters.
func (h *handlers) queryParams(c *fiber.Ctx) error {
	a, b := c.Query("a"), c.Query("b")
	return c.JSON(QueryResponse{A: a, B: b, Result: a + b})
}

// uploadFile stores the "myfile" field in the uploads bucket.
func (h *handlers) uploadFile(c *fiber.Ctx) error {
	if h.deps.Media == nil {
		return shop.ErrMediaUnavailable
	}
	upload, err := h.formUpload(c, "myfile")
	if err != nil {
		return err
	}
	obj, err := h.deps.Media.Upload(c.UserContext(), upload.Filename, upload.ContentType, upload.Data)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(obj)
}

func (h *handlers) throttleStats(c *fiber.Ctx) error {
	if h.deps.Throttle == nil {
		return c.JSON(fiber.Map{"enabled": false})
	}
	return c.JSON(fiber.Map{"enabled": true, "stats": h.deps.Throttle.Stats()})
}

// resetThrottle clears the totals and the process-wide request window.
func (h *handlers) resetThrottle(c *fiber.Ctx) error {
	if h.deps.Throttle == nil {
		return c.JSON(MessageResponse{Message: "Throttle disabled"})
	}
	h.deps.Throttle.ResetStats()
	if err := h.deps.Throttle.Counter().Reset(c.UserContext(), throttle.GlobalKey); err != nil {
		return err
	}
	return c.JSON(MessageResponse{Message: "Throttle reset"})
}

// activity lists the newest audit entries. The subject query keeps entries
// whose subject starts with it.
func (h *handlers) activity(c *fiber.Ctx) error {
	if h.deps.Activity == nil {
		return c.JSON(fiber.Map{"entries": []any{}, "counts": fiber.Map{}})
	}
	limit := c.QueryInt("limit", 50)
	return c.JSON(fiber.Map{
		"entries": h.deps.Activity.Recent(limit, c.Query("subject")),
		"counts":  h.deps.Activity.Counts(),
	})
}

// mediaObject serves a stored file. Receipts are only served to signed-in
// requesters.
func (h *handlers) mediaObject(c *fiber.Ctx) error {
	if h.deps.Media == nil {
		return shop.ErrMediaUnavailable
	}
	bucket := c.Params("bucket")
	if bucket == media.ReceiptsBucket {
		if err := authz.RequireAuthenticated(actorFrom(c)).Err(); err != nil {
			return err
		}
	}

	ref := bucket + "/" + c.Params("id") + "/" + c.Params("name")
	data, obj, err := h.deps.Media.Open(c.UserContext(), ref)
	if err != nil {
		return err
	}
	if obj.ContentType != "" {
		c.Set(fiber.HeaderContentType, obj.ContentType)
	}
	return c.Send(data)
}

// health aggregates the health of every registered module.
func (m *Module) health(c *fiber.Ctx) error {
	names := make([]string, 0, len(m.deps.Health))
	for name := range m.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{
		Status:  "healthy",
		Modules: make(map[string]ModuleHealth, len(names)),
		Time:    time.Now().UTC(),
	}
	for _, name := range names {
		status := m.deps.Health[name].Health(c.UserContext())
		resp.Modules[name] = ModuleHealth{
			Healthy: status.Healthy,
			Message: status.Message,
			Details: status.Details,
		}
		if !status.Healthy {
			resp.Status = "unhealthy"
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.Status(code).JSON(resp)
}
