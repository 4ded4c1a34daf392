package blog

import "time"

// Author writes articles.
type Author struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Bio  string `gorm:"type:text;not null;default:''" json:"bio"`
}

// TableName returns the table name for Author model.
func (Author) TableName() string {
	return "blog_authors"
}

// Category groups articles.
type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:40;uniqueIndex;not null" json:"name"`
}

// TableName returns the table name for Category model.
func (Category) TableName() string {
	return "blog_categories"
}

// Tag labels articles.
type Tag struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:40;uniqueIndex;not null" json:"name"`
}

// TableName returns the table name for Tag model.
func (Tag) TableName() string {
	return "blog_tags"
}

// Article is a blog post. Articles without a publication date are drafts.
type Article struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Title      string     `gorm:"size:200;not null" json:"title"`
	Content    string     `gorm:"type:text" json:"content"`
	PubDate    *time.Time `gorm:"index" json:"pub_date"`
	AuthorID   uint       `gorm:"not null;index" json:"author_id"`
	CategoryID uint       `gorm:"not null;index" json:"category_id"`
	Author     *Author    `gorm:"constraint:OnDelete:CASCADE" json:"author,omitempty"`
	Category   *Category  `gorm:"constraint:OnDelete:CASCADE" json:"category,omitempty"`
	Tags       []string   `gorm:"-" json:"tags"`
}

// TableName returns the table name for Article model.
func (Article) TableName() string {
	return "blog_articles"
}

// ArticleTag is the explicit join row between articles and tags.
type ArticleTag struct {
	ArticleID uint `gorm:"primaryKey;autoIncrement:false"`
	TagID     uint `gorm:"primaryKey;autoIncrement:false"`
}

// TableName returns the table name for ArticleTag model.
func (ArticleTag) TableName() string {
	return "blog_article_tags"
}
