package httpserver

import (
	"io"
	"mime/multipart"

	"github.com/example/shop-monolith/domain/authz"
	catalog "github.com/example/shop-monolith/domain/shop"
	"github.com/example/shop-monolith/modules/account"
	"github.com/example/shop-monolith/modules/media"
	"github.com/example/shop-monolith/modules/shop"
	"github.com/example/shop-monolith/modules/store"
	"github.com/gofiber/fiber/v2"
)

// handlers contains the HTTP handlers.
type handlers struct {
	cfg  Config
	deps Deps
}

func (h *handlers) shopIndex(c *fiber.Ctx) error {
	return c.JSON(h.deps.Shop.Index())
}

func (h *handlers) listGroups(c *fiber.Ctx) error {
	groups, err := h.deps.Accounts.Groups(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"groups": groups})
}

func (h *handlers) createGroup(c *fiber.Ctx) error {
	var req GroupRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	group, err := h.deps.Accounts.CreateGroup(c.UserContext(), actorFrom(c), account.GroupInput{
		Name:        req.Name,
		Permissions: req.Permissions,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

func (h *handlers) listProducts(c *fiber.Ctx) error {
	page, err := h.deps.Shop.ListProducts(c.UserContext(), catalog.ProductFilter{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
		Page:     c.QueryInt("page", 1),
	})
	if err != nil {
		return err
	}
	return c.JSON(newProductPageResponse(page))
}

func (h *handlers) productDetail(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	product, err := h.deps.Shop.GetProduct(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(newProductResponse(product))
}

func (h *handlers) createProduct(c *fiber.Ctx) error {
	var in shop.ProductInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	product, err := h.deps.Shop.CreateProduct(c.UserContext(), actorFrom(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newProductResponse(product))
}

// updateProduct accepts optional "images" files in a multipart body.
func (h *handlers) updateProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in shop.ProductInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	images, err := h.formUploads(c, "images")
	if err != nil {
		return err
	}
	product, err := h.deps.Shop.UpdateProduct(c.UserContext(), actorFrom(c), id, in, images)
	if err != nil {
		return err
	}
	return c.JSON(newProductResponse(product))
}

func (h *handlers) archiveProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	product, err := h.deps.Shop.ArchiveProduct(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(newProductResponse(product))
}

func (h *handlers) productPreview(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	upload, err := h.formUpload(c, "preview")
	if err != nil {
		return err
	}
	product, err := h.deps.Shop.AttachPreview(c.UserContext(), actorFrom(c), id, upload)
	if err != nil {
		return err
	}
	return c.JSON(newProductResponse(product))
}

func (h *handlers) exportProducts(c *fiber.Ctx) error {
	data, err := h.deps.Shop.ExportProducts(c.UserContext())
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func (h *handlers) productsFeed(c *fiber.Ctx) error {
	rss, err := h.deps.Shop.LatestProductsFeed(c.UserContext(), h.cfg.BaseURL)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/rss+xml; charset=utf-8")
	return c.SendString(rss)
}

func (h *handlers) listOrders(c *fiber.Ctx) error {
	page, err := h.deps.Shop.ListOrders(c.UserContext(), actorFrom(c), c.QueryInt("page", 1))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *handlers) createOrder(c *fiber.Ctx) error {
	var in shop.OrderInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	order, err := h.deps.Shop.CreateOrder(c.UserContext(), actorFrom(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *handlers) orderDetail(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	order, err := h.deps.Shop.GetOrder(c.UserContext(), actorFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (h *handlers) updateOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in shop.OrderInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	order, err := h.deps.Shop.UpdateOrder(c.UserContext(), actorFrom(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (h *handlers) deleteOrder(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.deps.Shop.DeleteOrder(c.UserContext(), actorFrom(c), id); err != nil {
		return err
	}
	return c.JSON(MessageResponse{Message: "Order deleted"})
}

func (h *handlers) orderReceipt(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	upload, err := h.formUpload(c, "receipt")
	if err != nil {
		return err
	}
	order, err := h.deps.Shop.AttachReceipt(c.UserContext(), actorFrom(c), id, upload)
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (h *handlers) exportOrders(c *fiber.Ctx) error {
	data, err := h.deps.Shop.ExportOrders(c.UserContext(), actorFrom(c))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func (h *handlers) userOrders(c *fiber.Ctx) error {
	userID, err := paramID(c, "user_id")
	if err != nil {
		return err
	}
	orders, err := h.deps.Shop.ListUserOrders(c.UserContext(), actorFrom(c), userID)
	if err != nil {
		return err
	}
	return c.JSON(orders)
}

func (h *handlers) exportUserOrders(c *fiber.Ctx) error {
	userID, err := paramID(c, "user_id")
	if err != nil {
		return err
	}
	data, err := h.deps.Shop.ExportUserOrders(c.UserContext(), actorFrom(c), userID)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}

func (h *handlers) bulkArchive(c *fiber.Ctx) error {
	if err := authz.RequireSuperuser(actorFrom(c)).Err(); err != nil {
		return err
	}
	var req BulkArchiveRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	var archived bool
	switch req.Action {
	case ActionMarkArchived:
		archived = true
	case ActionMarkUnarchived:
		archived = false
	default:
		return &shop.ValidationError{Fields: map[string]string{
			"action": "must be " + ActionMarkArchived + " or " + ActionMarkUnarchived,
		}}
	}
	n, err := h.deps.Shop.BulkSetArchived(c.UserContext(), actorFrom(c), req.IDs, archived)
	if err != nil {
		return err
	}
	return c.JSON(BulkArchiveResponse{Action: req.Action, Updated: n})
}

// paramID parses a positive id route parameter. Anything else is not found.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, store.ErrNotFound
	}
	return uint(id), nil
}

func (h *handlers) maxUpload() int64 {
	if h.deps.Media == nil {
		return media.DefaultMaxUpload
	}
	return h.deps.Media.MaxUpload()
}

// formUpload reads one required file field.
func (h *handlers) formUpload(c *fiber.Ctx, field string) (shop.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return shop.Upload{}, &shop.ValidationError{Fields: map[string]string{field: "a file is required"}}
	}
	return readUpload(fh, h.maxUpload())
}

// formUploads reads every file of an optional multipart field.
func (h *handlers) formUploads(c *fiber.Ctx, field string) ([]shop.Upload, error) {
	form, err := c.MultipartForm()
	if err != nil {
		// not a multipart request
		return nil, nil
	}
	files := form.File[field]
	uploads := make([]shop.Upload, 0, len(files))
	for _, fh := range files {
		upload, err := readUpload(fh, h.maxUpload())
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func readUpload(fh *multipart.FileHeader, limit int64) (shop.Upload, error) {
	if fh.Size > limit {
		return shop.Upload{}, media.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return shop.Upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return shop.Upload{}, err
	}
	return shop.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}
