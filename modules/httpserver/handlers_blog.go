package httpserver

import (
	"strings"
	"time"

	"github.com/example/shop-monolith/domain/authz"
	"github.com/example/shop-monolith/modules/blog"
	"github.com/gofiber/fiber/v2"
)

func (h *handlers) listArticles(c *fiber.Ctx) error {
	page, err := h.deps.Blog.ListArticles(c.UserContext(), c.QueryInt("page", 1))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

func (h *handlers) articleDetail(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	article, err := h.deps.Blog.GetArticle(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(article)
}

func (h *handlers) createArticle(c *fiber.Ctx) error {
	if err := authz.CanPublishArticles(actorFrom(c)).Err(); err != nil {
		return err
	}
	var req ArticleRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	in := blog.ArticleInput{
		Title:    req.Title,
		Content:  req.Content,
		Author:   req.Author,
		Category: req.Category,
		Tags:     req.Tags,
		Draft:    req.Draft,
	}
	if raw := strings.TrimSpace(req.PubDate); raw != "" {
		pubDate, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return &blog.ValidationError{Fields: map[string]string{"pub_date": "must be an RFC 3339 timestamp"}}
		}
		in.PubDate = &pubDate
	}

	article, err := h.deps.Blog.CreateArticle(c.UserContext(), actorFrom(c), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(article)
}

func (h *handlers) articlesFeed(c *fiber.Ctx) error {
	rss, err := h.deps.Blog.LatestArticlesFeed(c.UserContext(), h.cfg.BaseURL)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/rss+xml; charset=utf-8")
	return c.SendString(rss)
}
