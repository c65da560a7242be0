package apperrors

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrMissingConnectionString = errors.New("connection string is required")
)
