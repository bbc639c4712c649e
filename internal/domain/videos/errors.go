package videos

import "errors"

var (
	// ErrInvalidEvent marks a webhook payload missing its correlation field.
	ErrInvalidEvent    = errors.New("invalid webhook event")
	ErrInvalidRef      = errors.New("invalid video ref")
	ErrNotFound        = errors.New("video not found")
	ErrVersionConflict = errors.New("video version conflict")
)
