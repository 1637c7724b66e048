package config

import "errors"

var (
	// ErrInvalidConfig indicates a value that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingConfig indicates a required setting that was not provided.
	ErrMissingConfig = errors.New("missing configuration")
)
