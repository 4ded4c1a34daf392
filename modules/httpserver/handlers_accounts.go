package httpserver

import (
	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/modules/account"
	"github.com/example/shop-monolith/modules/media"
	"github.com/example/shop-monolith/modules/shop"
	"github.com/gofiber/fiber/v2"
)

// register creates an account and signs it in.
func (h *handlers) register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	// never echo the password back
	c.Locals(formContextKey, fiber.Map{"username": req.Username, "email": req.Email})
	if _, err := h.deps.Accounts.Register(c.UserContext(), account.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}); err != nil {
		return err
	}

	result, err := h.deps.Accounts.Login(c.UserContext(), req.Username, req.Password, c.Cookies(SessionCookie))
	if err != nil {
		return err
	}
	setSessionCookie(c, result.SessionID, h.cfg.SessionTTL)
	return c.Status(fiber.StatusCreated).JSON(tokenResponse(result))
}

func (h *handlers) login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if req.Username == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Username and password are required")
	}

	result, err := h.deps.Accounts.Login(c.UserContext(), req.Username, req.Password, c.Cookies(SessionCookie))
	if err != nil {
		return err
	}
	setSessionCookie(c, result.SessionID, h.cfg.SessionTTL)
	return c.JSON(tokenResponse(result))
}

func tokenResponse(result *account.LoginResult) TokenResponse {
	return TokenResponse{
		User:        result.User,
		AccessToken: result.AccessToken,
		ExpiresIn:   result.ExpiresIn,
		TokenType:   result.TokenType,
	}
}

func (h *handlers) logout(c *fiber.Ctx) error {
	if err := h.deps.Accounts.Logout(c.UserContext(), c.Cookies(SessionCookie)); err != nil {
		return err
	}
	clearSessionCookie(c)
	return c.JSON(MessageResponse{Message: "Logged out"})
}

func (h *handlers) aboutMe(c *fiber.Ctx) error {
	detail, err := h.deps.Accounts.UserDetail(c.UserContext(), actorFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

func (h *handlers) listUsers(c *fiber.Ctx) error {
	users, err := h.deps.Accounts.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": users})
}

func (h *handlers) userDetail(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	detail, err := h.deps.Accounts.UserDetail(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// updateProfile writes the bio and stores an optional "avatar" file.
func (h *handlers) updateProfile(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	actor := actorFrom(c)
	if err := authz.CanManageUser(actor, id).Err(); err != nil {
		return err
	}

	in := account.ProfileInput{Bio: c.FormValue("bio")}
	c.Locals(formContextKey, &in)
	if fh, err := c.FormFile("avatar"); err == nil {
		if h.deps.Media == nil {
			return shop.ErrMediaUnavailable
		}
		upload, err := readUpload(fh, h.maxUpload())
		if err != nil {
			return err
		}
		ref, err := h.deps.Media.Store(c.UserContext(), media.AvatarsBucket, upload.Filename, upload.ContentType, upload.Data)
		if err != nil {
			return err
		}
		in.Avatar = ref
	} else if current, err := h.deps.Accounts.UserDetail(c.UserContext(), id); err == nil && current.Profile != nil {
		in.Avatar = current.Profile.Avatar
	}

	profile, err := h.deps.Accounts.UpdateProfile(c.UserContext(), actor, id, in)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

func (h *handlers) deleteUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.deps.Accounts.DeleteUser(c.UserContext(), actorFrom(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) grantPermission(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req PermissionRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	if err := h.deps.Accounts.GrantPermission(c.UserContext(), actorFrom(c), id, req.Codename); err != nil {
		return err
	}
	detail, err := h.deps.Accounts.UserDetail(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

func (h *handlers) setCookie(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{Name: "foo", Value: "bar", MaxAge: 600, Path: "/"})
	return c.JSON(MessageResponse{Message: "Set cookie"})
}

func (h *handlers) getCookie(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"foo": c.Cookies("foo", "getting cookies")})
}

func (h *handlers) setSession(c *fiber.Ctx) error {
	sid, err := h.deps.Accounts.SetSessionValue(c.UserContext(), c.Cookies(SessionCookie), "foobar", "fizz buzz")
	if err != nil {
		return err
	}
	setSessionCookie(c, sid, h.cfg.SessionTTL)
	return c.JSON(MessageResponse{Message: "Session set!"})
}

func (h *handlers) getSession(c *fiber.Ctx) error {
	value, ok, err := h.deps.Accounts.SessionValue(c.UserContext(), c.Cookies(SessionCookie), "foobar")
	if err != nil {
		return err
	}
	if !ok {
		return c.JSON(fiber.Map{"foobar": nil})
	}
	return c.JSON(fiber.Map{"foobar": value})
}

func (h *handlers) fooBar(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"foo": "bar", "spam": "eggs"})
}
