package domain

import "errors"

// Sentinel errors returned by repositories. Services translate them into
// pkg/errors.AppError values.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
	ErrInvalidPayload = errors.New("invalid message payload")
)
