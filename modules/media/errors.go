package media

import "errors"

// Sentinel errors for media operations.
var (
	// ErrObjectNotFound is returned when a reference points at nothing.
	ErrObjectNotFound = errors.New("media object not found")

	// ErrInvalidRef is returned when a reference is not "bucket/id/name".
	ErrInvalidRef = errors.New("invalid media reference")

	// ErrUnknownBucket is returned for buckets the plugin was not configured with.
	ErrUnknownBucket = errors.New("unknown media bucket")

	// ErrEmptyFile is returned when an upload carries no data.
	ErrEmptyFile = errors.New("file data is empty")

	// ErrNotStarted is returned when storage is used before the module started.
	ErrNotStarted = errors.New("media storage not started")

	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("file too large")
)
