package shop

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/example/shop-monolith/domain/shop"
	"github.com/gorilla/feeds"
)

// Feed settings of the latest products feed.
const (
	FeedItems          = 5
	FeedDescriptionLen = 200
)

// LatestProductsFeed renders the newest non-archived products as RSS 2.0.
// baseURL prefixes the item links, e.g. "http://localhost:3000".
func (s *Service) LatestProductsFeed(ctx context.Context, baseURL string) (string, error) {
	products, err := s.products.Latest(ctx, FeedItems)
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(baseURL, "/")
	feed := &feeds.Feed{
		Title:       "Latest products",
		Link:        &feeds.Link{Href: base + "/shop/products/"},
		Description: "Updates on changes and addition products",
		Created:     s.now(),
	}
	for _, p := range products {
		feed.Add(productFeedItem(base, p))
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to render products feed: %w", err)
	}
	return rss, nil
}

func productFeedItem(base string, p domain.Product) *feeds.Item {
	return &feeds.Item{
		Title:       p.Name,
		Link:        &feeds.Link{Href: fmt.Sprintf("%s/shop/products/%d/", base, p.ID)},
		Description: domain.Truncate(p.Description, FeedDescriptionLen, ""),
		Id:          fmt.Sprintf("%s/shop/products/%d/", base, p.ID),
		Created:     p.CreatedAt,
	}
}
