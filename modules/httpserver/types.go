package httpserver

import (
	"time"

	"github.com/example/shop-monolith/domain/account"
	catalog "github.com/example/shop-monolith/domain/shop"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ValidationResponse is returned by API endpoints for rejected payloads.
type ValidationResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// FormResponse echoes a rejected form with its field errors.
type FormResponse struct {
	Form   any               `json:"form"`
	Errors map[string]string `json:"errors"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest represents a user registration request.
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// TokenResponse represents an authentication token response.
type TokenResponse struct {
	User        *account.User `json:"user"`
	AccessToken string        `json:"access_token"`
	ExpiresIn   int64         `json:"expires_in"`
	TokenType   string        `json:"token_type"`
}

// GroupRequest represents a group creation request.
type GroupRequest struct {
	Name        string   `json:"name" form:"name"`
	Permissions []string `json:"permissions" form:"permissions"`
}

// PermissionRequest grants one permission to a user.
type PermissionRequest struct {
	Codename string `json:"codename" form:"codename"`
}

// ArticleRequest represents a new blog article. PubDate is RFC 3339.
type ArticleRequest struct {
	Title    string   `json:"title" form:"title"`
	Content  string   `json:"content" form:"content"`
	Author   string   `json:"author" form:"author"`
	Category string   `json:"category" form:"category"`
	Tags     []string `json:"tags" form:"tags"`
	PubDate  string   `json:"pub_date" form:"pub_date"`
	Draft    bool     `json:"draft" form:"draft"`
}

// Bulk archive actions.
const (
	ActionMarkArchived   = "mark_archived"
	ActionMarkUnarchived = "mark_unarchived"
)

// BulkArchiveRequest marks several products archived or unarchived.
type BulkArchiveRequest struct {
	Action string `json:"action" form:"action"`
	IDs    []uint `json:"ids" form:"ids"`
}

// BulkArchiveResponse reports how many products the action matched.
type BulkArchiveResponse struct {
	Action  string `json:"action"`
	Updated int64  `json:"updated"`
}

// ProductResponse is a product with its derived short description.
type ProductResponse struct {
	*catalog.Product
	DescriptionShort string `json:"description_short"`
}

func newProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{Product: p, DescriptionShort: p.DescriptionShort()}
}

// ProductPageResponse is a page of products with short descriptions.
type ProductPageResponse struct {
	Items    []ProductResponse `json:"results"`
	Page     int               `json:"page"`
	Count    int64             `json:"count"`
	HasNext  bool              `json:"has_next"`
	HasPrev  bool              `json:"has_previous"`
	NumPages int               `json:"num_pages"`
}

func newProductPageResponse(page *catalog.Page[catalog.Product]) ProductPageResponse {
	items := make([]ProductResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, newProductResponse(&page.Items[i]))
	}
	return ProductPageResponse{
		Items:    items,
		Page:     page.Page,
		Count:    page.Count,
		HasNext:  page.HasNext,
		HasPrev:  page.HasPrev,
		NumPages: page.NumPages,
	}
}

// QueryResponse is the query parameter demo payload.
type QueryResponse struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Result string `json:"result"`
}

// HealthResponse aggregates module health.
type HealthResponse struct {
	Status  string                  `json:"status"`
	Modules map[string]ModuleHealth `json:"modules"`
	Time    time.Time               `json:"time"`
}

// ModuleHealth is the health of one module.
type ModuleHealth struct {
	Healthy bool           `json:"healthy"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
