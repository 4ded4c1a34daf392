package httpserver

import (
	"strings"
	"time"

	domain "github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/modules/account"
	"github.com/gofiber/fiber/v2"
)

const (
	// ActorContextKey is the key used to store the requester in the Fiber context.
	ActorContextKey = "actor"

	// SessionCookie carries the session id.
	SessionCookie = "sessionid"

	formContextKey = "form"
)

// ActorMiddleware resolves the requester. A bearer token must be valid; a
// session cookie that resolves to nobody leaves the request anonymous.
func ActorMiddleware(actors account.ActorPort) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if authHeader := c.Get("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
					Error:   "unauthorized",
					Message: "Invalid authorization header format. Use: Bearer <token>",
				})
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			actor, err := actors.ValidateToken(c.UserContext(), token)
			if err != nil || actor == nil {
				return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
					Error:   "unauthorized",
					Message: "Invalid or expired token",
				})
			}
			c.Locals(ActorContextKey, actor)
			return c.Next()
		}

		if sid := c.Cookies(SessionCookie); sid != "" {
			actor, err := actors.ResolveSession(c.UserContext(), sid)
			if err != nil {
				return err
			}
			if actor != nil {
				c.Locals(ActorContextKey, actor)
			}
		}
		return c.Next()
	}
}

// actorFrom returns the requester, nil when anonymous.
func actorFrom(c *fiber.Ctx) *domain.Actor {
	actor, _ := c.Locals(ActorContextKey).(*domain.Actor)
	return actor
}

// guard refuses the request unless check allows the requester.
func guard(check func(*domain.Actor) authz.Decision) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := check(actorFrom(c)).Err(); err != nil {
			return err
		}
		return c.Next()
	}
}

func setSessionCookie(c *fiber.Ctx, sessionID string, ttl time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func clearSessionCookie(c *fiber.Ctx) {
	c.ClearCookie(SessionCookie)
}

// bindBody parses the request body into out and keeps it for form error
// responses.
func bindBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	c.Locals(formContextKey, out)
	return nil
}
