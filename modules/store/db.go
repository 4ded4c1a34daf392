package store

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/shop-monolith/domain/account"
	"github.com/example/shop-monolith/domain/blog"
	"github.com/example/shop-monolith/domain/shop"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Config selects and tunes the database connection.
type Config struct {
	Driver  string
	DSN     string
	Debug   bool
	Timeout time.Duration
}

// Open connects to the configured database.
func Open(cfg Config) (*gorm.DB, error) {
	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}

	var dialector gorm.Dialector
	memory := false
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "shop.db"
		}
		memory = strings.Contains(dsn, ":memory:")
		dialector = sqlite.Open(sqliteDSN(dsn))
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if memory {
		// every new connection would open a fresh empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func sqliteDSN(dsn string) string {
	if dsn == ":memory:" {
		dsn = "file::memory:"
	}
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// Migrate creates the schema and the known permission rows.
func Migrate(ctx context.Context, db *gorm.DB) error {
	err := db.WithContext(ctx).AutoMigrate(
		&account.User{},
		&account.Profile{},
		&account.Permission{},
		&account.Group{},
		&account.UserPermission{},
		&account.UserGroup{},
		&account.GroupPermission{},
		&shop.Product{},
		&shop.ProductImage{},
		&shop.Order{},
		&shop.OrderProduct{},
		&blog.Author{},
		&blog.Category{},
		&blog.Tag{},
		&blog.Article{},
		&blog.ArticleTag{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	perms := make([]account.Permission, len(account.KnownPermissions))
	copy(perms, account.KnownPermissions)
	err = db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "codename"}}, DoNothing: true}).
		Create(&perms).Error
	if err != nil {
		return fmt.Errorf("failed to seed permissions: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	log.Println("[store] Database connection closed")
	return nil
}

// base scopes every repository call to the request context and the
// configured statement timeout.
type base struct {
	db      *gorm.DB
	timeout time.Duration
}

func (b base) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if b.timeout <= 0 {
		return b.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	return b.db.WithContext(ctx), cancel
}

// Repositories bundles every repository over one connection.
type Repositories struct {
	Products *ProductRepository
	Orders   *OrderRepository
	Users    *UserRepository
	Blog     *BlogRepository
}

// NewRepositories builds the repositories sharing db.
func NewRepositories(db *gorm.DB, timeout time.Duration) *Repositories {
	b := base{db: db, timeout: timeout}
	return &Repositories{
		Products: &ProductRepository{base: b},
		Orders:   &OrderRepository{base: b},
		Users:    &UserRepository{base: b},
		Blog:     &BlogRepository{base: b},
	}
}
