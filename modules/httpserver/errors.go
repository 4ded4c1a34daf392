package httpserver

import (
	"errors"
	"log"
	"net/url"
	"strings"

	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/modules/account"
	"github.com/example/shop-monolith/modules/media"
	"github.com/example/shop-monolith/modules/shop"
	"github.com/example/shop-monolith/modules/store"
	"github.com/gofiber/fiber/v2"
)

// LoginPath is where anonymous requesters are sent when a guard refuses them.
const LoginPath = "/accounts/login/"

// fieldErrors is implemented by every validation error of the services.
type fieldErrors interface {
	error
	FieldErrors() map[string]string
}

// customErrorHandler handles errors returned by handlers and middleware.
func customErrorHandler(c *fiber.Ctx, err error) error {
	return writeError(c, err)
}

// writeError maps an error to its HTTP response.
func writeError(c *fiber.Ctx, err error) error {
	var denied *authz.DeniedError
	if errors.As(err, &denied) {
		if denied.Decision.Anonymous() && !isAPI(c) {
			return c.Redirect(LoginPath+"?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)
		}
		return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
			Error:   "forbidden",
			Message: string(denied.Decision.Reason()),
		})
	}

	var verr fieldErrors
	if errors.As(err, &verr) {
		if isAPI(c) {
			return c.Status(fiber.StatusBadRequest).JSON(ValidationResponse{
				Error:   "validation_error",
				Message: "Invalid input",
				Errors:  verr.FieldErrors(),
			})
		}
		return c.Status(fiber.StatusOK).JSON(FormResponse{
			Form:   c.Locals(formContextKey),
			Errors: verr.FieldErrors(),
		})
	}

	var ferr *fiber.Error
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInvalidPage),
		errors.Is(err, media.ErrObjectNotFound),
		errors.Is(err, media.ErrInvalidRef),
		errors.Is(err, media.ErrUnknownBucket):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "Not found",
		})
	case errors.Is(err, store.ErrIntegrity):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Error:   "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, account.ErrInvalidCredentials),
		errors.Is(err, account.ErrInactiveUser),
		errors.Is(err, account.ErrInvalidToken),
		errors.Is(err, account.ErrExpiredToken):
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
			Error:   "unauthorized",
			Message: err.Error(),
		})
	case errors.Is(err, shop.ErrEmptyCSV), errors.Is(err, media.ErrEmptyFile):
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error:   "bad_request",
			Message: err.Error(),
		})
	case errors.Is(err, media.ErrTooLarge):
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(ErrorResponse{
			Error:   "too_large",
			Message: "File is too large",
		})
	case errors.Is(err, shop.ErrMediaUnavailable), errors.Is(err, media.ErrNotStarted):
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error:   "unavailable",
			Message: "Media storage is unavailable",
		})
	case errors.As(err, &ferr):
		return c.Status(ferr.Code).JSON(ErrorResponse{
			Error:   errorCode(ferr.Code),
			Message: ferr.Message,
		})
	}

	log.Printf("[httpserver] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "internal_error",
		Message: "Internal Server Error",
	})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "too_large"
	}
	return "server_error"
}

func isAPI(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/")
}
