package shop

import (
	"encoding/json"
	"errors"
	"strings"

	domain "github.com/example/shop-monolith/domain/shop"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

var maxPrice = decimal.NewFromInt(1_000_000)

// ProductInput is the create/update payload of a product. Price accepts a
// JSON number or a decimal string; empty means 0.
type ProductInput struct {
	Name        string      `json:"name" form:"name"`
	Description string      `json:"description" form:"description"`
	Price       json.Number `json:"price" form:"price"`
	Discount    int         `json:"discount" form:"discount"`
}

// Validate checks the payload. The name is checked as it will be stored,
// without surrounding spaces.
func (in ProductInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.Price, validation.By(checkPrice)),
		validation.Field(&in.Discount, validation.Min(0), validation.Max(100)),
	)
}

func checkPrice(value any) error {
	raw, _ := value.(json.Number)
	if raw == "" {
		return nil
	}
	price, err := decimal.NewFromString(string(raw))
	if err != nil {
		return errors.New("must be a number")
	}
	if price.IsNegative() {
		return errors.New("must be no less than 0")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return errors.New("must be less than 1000000")
	}
	if !price.Round(2).Equal(price) {
		return errors.New("must have no more than 2 decimal places")
	}
	return nil
}

// fields converts a validated payload.
func (in ProductInput) fields() domain.ProductFields {
	price := decimal.Zero
	if in.Price != "" {
		price, _ = decimal.NewFromString(string(in.Price))
	}
	return domain.ProductFields{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       price.Round(2),
		Discount:    int16(in.Discount),
	}
}

// OrderInput is the create/update payload of an order. A zero User means
// the requesting actor on create and the current owner on update.
type OrderInput struct {
	DeliveryAddress string `json:"delivery_address" form:"delivery_address"`
	Promocode       string `json:"promocode" form:"promocode"`
	UserID          uint   `json:"user" form:"user"`
	Products        []uint `json:"products" form:"products"`
}

// Validate checks the payload.
func (in OrderInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Promocode, validation.RuneLength(0, 20)),
		validation.Field(&in.Products, validation.Each(validation.Required.Error("select a valid choice"))),
	)
}

func (in OrderInput) fields() domain.OrderFields {
	return domain.OrderFields{
		DeliveryAddress: strings.TrimSpace(in.DeliveryAddress),
		Promocode:       strings.TrimSpace(in.Promocode),
		UserID:          in.UserID,
		ProductIDs:      in.Products,
	}
}

// Upload is a file received with a request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
