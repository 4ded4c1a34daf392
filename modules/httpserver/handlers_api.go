package httpserver

import (
	"bytes"
	"strconv"

	catalog "github.com/example/shop-monolith/domain/shop"
	"github.com/example/shop-monolith/modules/shop"
	"github.com/gofiber/fiber/v2"
)

func (h *handlers) hello(c *fiber.Ctx) error {
	return c.JSON(MessageResponse{Message: "Hello World!"})
}

// apiFilter reads the REST product filters. An unparsable archieved value is
// a field error.
func apiFilter(c *fiber.Ctx) (catalog.ProductFilter, error) {
	filter := catalog.ProductFilter{
		Search:   c.Query("search"),
		Name:     c.Query("name"),
		Ordering: c.Query("ordering"),
		Page:     c.QueryInt("page", 1),
	}
	if raw := c.Query("archieved"); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, &shop.ValidationError{Fields: map[string]string{"archieved": "must be true or false"}}
		}
		filter.Archived = &archived
	}
	return filter, nil
}

func (h *handlers) apiListProducts(c *fiber.Ctx) error {
	filter, err := apiFilter(c)
	if err != nil {
		return err
	}
	page, err := h.deps.Shop.APIListProducts(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(newProductPageResponse(page))
}

func (h *handlers) apiCreateProduct(c *fiber.Ctx) error {
	return h.createProduct(c)
}

func (h *handlers) apiUpdateProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in shop.ProductInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	product, err := h.deps.Shop.UpdateProduct(c.UserContext(), actorFrom(c), id, in, nil)
	if err != nil {
		return err
	}
	return c.JSON(newProductResponse(product))
}

// apiArchiveProduct answers DELETE. Products are archived, never removed.
func (h *handlers) apiArchiveProduct(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if _, err := h.deps.Shop.ArchiveProduct(c.UserContext(), actorFrom(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) downloadCSV(c *fiber.Ctx) error {
	filter, err := apiFilter(c)
	if err != nil {
		return err
	}
	data, err := h.deps.Shop.DownloadCSV(c.UserContext(), filter)
	if err != nil {
		return err
	}
	c.Attachment(shop.CSVFilename)
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(data)
}

func (h *handlers) uploadCSV(c *fiber.Ctx) error {
	upload, err := h.formUpload(c, "file")
	if err != nil {
		return err
	}
	products, err := h.deps.Shop.UploadCSV(c.UserContext(), actorFrom(c), bytes.NewReader(upload.Data))
	if err != nil {
		return err
	}
	out := make([]ProductResponse, 0, len(products))
	for i := range products {
		out = append(out, newProductResponse(&products[i]))
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}
