package shop

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	// ErrMediaUnavailable is returned when an upload arrives and no media
	// storage is wired.
	ErrMediaUnavailable = errors.New("media storage unavailable")

	// ErrEmptyCSV is returned when an uploaded CSV has no header row.
	ErrEmptyCSV = errors.New("csv file is empty")
)

// ValidationError is a rejected product or order payload. Fields maps form
// field names to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	if len(keys) == 0 {
		return "invalid input"
	}
	return fmt.Sprintf("invalid input: %s %s", keys[0], e.Fields[keys[0]])
}

// FieldErrors returns the field to message map.
func (e *ValidationError) FieldErrors() map[string]string {
	return e.Fields
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
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
