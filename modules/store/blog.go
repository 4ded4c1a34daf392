package store

import (
	"context"
	"time"

	"github.com/example/shop-monolith/domain/blog"
	"github.com/example/shop-monolith/domain/shop"
	"gorm.io/gorm"
)

// BlogRepository provides access to articles and their taxonomy.
type BlogRepository struct {
	base
}

// ArticleInput describes a new article. Author, category and tags are
// referenced by name and created when missing.
type ArticleInput struct {
	Title    string
	Content  string
	PubDate  *time.Time
	Author   string
	Category string
	Tags     []string
}

func publishedArticles(db *gorm.DB) *gorm.DB {
	return db.Model(&blog.Article{}).Where("pub_date IS NOT NULL")
}

// ListArticles returns a page of published articles, newest first.
func (r *BlogRepository) ListArticles(ctx context.Context, page int) (*shop.Page[blog.Article], error) {
	if page < 0 {
		return nil, ErrInvalidPage
	}
	if page == 0 {
		page = 1
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	query := publishedArticles(db).Session(&gorm.Session{})

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, classify("count articles", err)
	}
	numPages := shop.NumPages(count)
	if page > numPages {
		return nil, ErrInvalidPage
	}

	var articles []blog.Article
	err := query.Preload("Author").Preload("Category").
		Order("pub_date DESC, id DESC").
		Offset(shop.Offset(page)).
		Limit(shop.PageSize).
		Find(&articles).Error
	if err != nil {
		return nil, classify("list articles", err)
	}
	if err := attachTags(db, articles); err != nil {
		return nil, err
	}

	return &shop.Page[blog.Article]{
		Items:    articles,
		Page:     page,
		Count:    count,
		NumPages: numPages,
		HasNext:  page < numPages,
		HasPrev:  page > 1,
	}, nil
}

// GetArticle returns an article with author, category and tags.
func (r *BlogRepository) GetArticle(ctx context.Context, id uint) (*blog.Article, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var article blog.Article
	if err := db.Preload("Author").Preload("Category").First(&article, id).Error; err != nil {
		return nil, classify("find article", err)
	}
	articles := []blog.Article{article}
	if err := attachTags(db, articles); err != nil {
		return nil, err
	}
	return &articles[0], nil
}

// LatestArticles returns the n most recently published articles.
func (r *BlogRepository) LatestArticles(ctx context.Context, n int) ([]blog.Article, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var articles []blog.Article
	err := publishedArticles(db).
		Preload("Author").Preload("Category").
		Order("pub_date DESC, id DESC").
		Limit(n).
		Find(&articles).Error
	if err != nil {
		return nil, classify("list latest articles", err)
	}
	return articles, nil
}

// CreateArticle stores an article, creating its author, category and tags
// by name when they do not exist yet.
func (r *BlogRepository) CreateArticle(ctx context.Context, in ArticleInput) (*blog.Article, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var article blog.Article
	err := db.Transaction(func(tx *gorm.DB) error {
		var author blog.Author
		if err := tx.Where(blog.Author{Name: in.Author}).FirstOrCreate(&author).Error; err != nil {
			return err
		}
		var category blog.Category
		if err := tx.Where(blog.Category{Name: in.Category}).FirstOrCreate(&category).Error; err != nil {
			return err
		}

		article = blog.Article{
			Title:      in.Title,
			Content:    in.Content,
			PubDate:    in.PubDate,
			AuthorID:   author.ID,
			CategoryID: category.ID,
		}
		if err := tx.Omit("Author", "Category").Create(&article).Error; err != nil {
			return err
		}
		article.Author = &author
		article.Category = &category

		article.Tags = []string{}
		for _, name := range uniqueStrings(in.Tags) {
			var tag blog.Tag
			if err := tx.Where(blog.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
				return err
			}
			if err := tx.Create(&blog.ArticleTag{ArticleID: article.ID, TagID: tag.ID}).Error; err != nil {
				return err
			}
			article.Tags = append(article.Tags, tag.Name)
		}
		return nil
	})
	if err != nil {
		return nil, classify("create article", err)
	}
	return &article, nil
}

func attachTags(db *gorm.DB, articles []blog.Article) error {
	if len(articles) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(articles))
	index := make(map[uint]int, len(articles))
	for i := range articles {
		ids = append(ids, articles[i].ID)
		index[articles[i].ID] = i
		articles[i].Tags = []string{}
	}

	type row struct {
		ArticleID uint
		Name      string
	}
	var rows []row
	err := db.Model(&blog.ArticleTag{}).
		Select("blog_article_tags.article_id, blog_tags.name").
		Joins("JOIN blog_tags ON blog_tags.id = blog_article_tags.tag_id").
		Where("blog_article_tags.article_id IN ?", ids).
		Order("blog_tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return classify("load article tags", err)
	}
	for _, rw := range rows {
		i := index[rw.ArticleID]
		articles[i].Tags = append(articles[i].Tags, rw.Name)
	}
	return nil
}
