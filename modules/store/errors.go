package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPage is returned when a page number is outside the listing.
	ErrInvalidPage = errors.New("invalid page")

	// ErrIntegrity is returned when a write would break a relational rule,
	// such as deleting a user that still owns orders.
	ErrIntegrity = errors.New("integrity error")
)

// classify maps driver and ORM errors onto the store's error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrIntegrity) || errors.Is(err, ErrInvalidPage) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: failed to %s: %w", ErrIntegrity, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// isConstraintViolation detects unique and foreign key violations from the
// translated GORM errors, postgres error codes (class 23) and sqlite messages.
func isConstraintViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "23")
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed")
}

func integrityError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, fmt.Sprintf(format, args...))
}
