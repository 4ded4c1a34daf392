package shop

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// PageSize is the number of items returned per listing page.
const PageSize = 10

// Product represents a catalog item. Archived products stay addressable by id
// but are hidden from default listings.
type Product struct {
	ID          uint            `gorm:"primaryKey" json:"pk"`
	Name        string          `gorm:"size:100;not null;index" json:"name"`
	Description string          `gorm:"type:text;not null;default:''" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(8,2);not null;default:0" json:"price"`
	Discount    int16           `gorm:"not null;default:0" json:"discount"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	Archived    bool            `gorm:"column:archieved;not null;index" json:"archieved"`
	CreatedByID uint            `gorm:"not null;index" json:"created_by"`
	Preview     string          `gorm:"size:255" json:"preview,omitempty"`
	Images      []ProductImage  `gorm:"constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

// TableName returns the table name for Product model.
func (Product) TableName() string {
	return "products"
}

// DescriptionShort returns the description cut to 50 characters.
func (p *Product) DescriptionShort() string {
	return Truncate(p.Description, 50, "...")
}

// ProductImage is an additional picture attached to a product.
type ProductImage struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ProductID   uint   `gorm:"not null;index" json:"product_id"`
	Image       string `gorm:"size:255;not null" json:"image"`
	Description string `gorm:"size:200;not null;default:''" json:"description"`
}

// TableName returns the table name for ProductImage model.
func (ProductImage) TableName() string {
	return "product_images"
}

// Order belongs to exactly one user and links products through order_products.
type Order struct {
	ID              uint      `gorm:"primaryKey" json:"pk"`
	DeliveryAddress string    `gorm:"type:text" json:"delivery_address"`
	Promocode       string    `gorm:"size:20;not null;default:''" json:"promocode"`
	CreatedAt       time.Time `json:"created_at"`
	UserID          uint      `gorm:"not null;index" json:"user"`
	Receipt         string    `gorm:"size:255" json:"receipt,omitempty"`
	ProductIDs      []uint    `gorm:"-" json:"products"`
}

// TableName returns the table name for Order model.
func (Order) TableName() string {
	return "orders"
}

// OrderProduct is the explicit join row between orders and products.
type OrderProduct struct {
	OrderID   uint `gorm:"primaryKey;autoIncrement:false"`
	ProductID uint `gorm:"primaryKey;autoIncrement:false;index"`
}

// TableName returns the table name for OrderProduct model.
func (OrderProduct) TableName() string {
	return "order_products"
}

// Truncate shortens s to at most n runes and appends suffix when it was cut.
func Truncate(s string, n int, suffix string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + suffix
}

// ProductFields are the writable attributes of a product.
type ProductFields struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Discount    int16           `json:"discount"`
}

// OrderFields are the writable attributes of an order.
type OrderFields struct {
	DeliveryAddress string `json:"delivery_address"`
	Promocode       string `json:"promocode"`
	UserID          uint   `json:"user"`
	ProductIDs      []uint `json:"products"`
}
