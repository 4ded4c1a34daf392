// Package blog serves published articles and the latest-articles feed.
package blog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/authz"
	domain "github.com/example/shop-monolith/domain/blog"
	"github.com/example/shop-monolith/domain/shop"
	"github.com/example/shop-monolith/modules/store"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gorilla/feeds"
)

// Feed settings of the latest articles feed.
const (
	FeedItems          = 5
	FeedDescriptionLen = 200
)

// ArticleStore is the article persistence the service needs.
type ArticleStore interface {
	ListArticles(ctx context.Context, page int) (*shop.Page[domain.Article], error)
	GetArticle(ctx context.Context, id uint) (*domain.Article, error)
	LatestArticles(ctx context.Context, n int) ([]domain.Article, error)
	CreateArticle(ctx context.Context, in store.ArticleInput) (*domain.Article, error)
}

// ArticleInput is the payload of a new article. A nil PubDate publishes the
// article immediately unless Draft is set.
type ArticleInput struct {
	Title    string     `json:"title" form:"title"`
	Content  string     `json:"content" form:"content"`
	Author   string     `json:"author" form:"author"`
	Category string     `json:"category" form:"category"`
	Tags     []string   `json:"tags" form:"tags"`
	PubDate  *time.Time `json:"pub_date" form:"pub_date"`
	Draft    bool       `json:"draft" form:"draft"`
}

// Validate checks the article fields.
func (in ArticleInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&in.Author, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.Category, validation.Required, validation.RuneLength(1, 40)),
		validation.Field(&in.Tags, validation.Each(validation.Required, validation.RuneLength(1, 40))),
	)
}

// ValidationError is a rejected article payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	if len(keys) == 0 {
		return "invalid article"
	}
	return fmt.Sprintf("invalid article: %s %s", keys[0], e.Fields[keys[0]])
}

// FieldErrors returns the field to message map.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}

// Service implements the blog flows.
type Service struct {
	articles ArticleStore
	now      func() time.Time
}

// NewService creates a blog service over articles.
func NewService(articles ArticleStore) *Service {
	return &Service{articles: articles, now: time.Now}
}

// ListArticles returns a page of published articles, newest first.
func (s *Service) ListArticles(ctx context.Context, page int) (*shop.Page[domain.Article], error) {
	return s.articles.ListArticles(ctx, page)
}

// GetArticle returns one article. Drafts are reported as not found.
func (s *Service) GetArticle(ctx context.Context, id uint) (*domain.Article, error) {
	article, err := s.articles.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.PubDate == nil {
		return nil, store.ErrNotFound
	}
	return article, nil
}

// CreateArticle stores an article. Only staff and superusers may publish.
func (s *Service) CreateArticle(ctx context.Context, actor *account.Actor, in ArticleInput) (*domain.Article, error) {
	if err := authz.CanPublishArticles(actor).Err(); err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.Category = strings.TrimSpace(in.Category)
	if err := in.Validate(); err != nil {
		return nil, toValidationError(err)
	}

	pubDate := in.PubDate
	switch {
	case in.Draft:
		pubDate = nil
	case pubDate == nil:
		now := s.now().UTC()
		pubDate = &now
	}

	article, err := s.articles.CreateArticle(ctx, store.ArticleInput{
		Title:    in.Title,
		Content:  in.Content,
		PubDate:  pubDate,
		Author:   in.Author,
		Category: in.Category,
		Tags:     in.Tags,
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

// LatestArticlesFeed renders the newest published articles as RSS 2.0.
func (s *Service) LatestArticlesFeed(ctx context.Context, baseURL string) (string, error) {
	articles, err := s.articles.LatestArticles(ctx, FeedItems)
	if err != nil {
		return "", err
	}

	base := strings.TrimRight(baseURL, "/")
	feed := &feeds.Feed{
		Title:       "Blog articles (latest)",
		Link:        &feeds.Link{Href: base + "/blog/articles/"},
		Description: "Updates on changes and addition blog articles",
		Created:     s.now(),
	}
	for _, a := range articles {
		link := fmt.Sprintf("%s/blog/articles/%d/", base, a.ID)
		item := &feeds.Item{
			Title:       a.Title,
			Link:        &feeds.Link{Href: link},
			Description: shop.Truncate(a.Content, FeedDescriptionLen, ""),
			Id:          link,
		}
		if a.Author != nil {
			item.Author = &feeds.Author{Name: a.Author.Name}
		}
		if a.PubDate != nil {
			item.Created = *a.PubDate
		}
		feed.Add(item)
	}

	rss, err := feed.ToRss()
	if err != nil {
		return "", fmt.Errorf("failed to render articles feed: %w", err)
	}
	return rss, nil
}

func toValidationError(err error) error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for field, ferr := range verrs {
		if ferr != nil {
			fields[field] = ferr.Error()
		}
	}
	return &ValidationError{Fields: fields}
}
