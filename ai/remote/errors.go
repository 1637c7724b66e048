package remote

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrConfigRequired is returned when a nil config is passed to a constructor.
	ErrConfigRequired = errors.New("ai config is required")

	// ErrDimensionMismatch is returned by Probe when an endpoint returns
	// vectors of a different width than configured.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrProbeImageRequired is returned by Probe when no probe image is configured.
	ErrProbeImageRequired = errors.New("probe image is required to check the image and multimodal endpoints")
)
