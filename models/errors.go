package models

import "errors"

var (
	ErrNavigationTimeout = errors.New("navigation timed out")
	ErrSession           = errors.New("fetch session failed")
	ErrIdentifierMissing = errors.New("product identifier missing")
	ErrExtractionFailed  = errors.New("no usable title or price extracted")
	ErrDuplicateTracking = errors.New("product is already being tracked")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("not owned by requester")
	ErrInvalidInput      = errors.New("invalid input")
)
