package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a catalog store is not provided.
	ErrStoreRequired = errors.New("catalog store required")

	// ErrBlobStoreRequired is returned when an object store is not provided.
	ErrBlobStoreRequired = errors.New("object store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrImageBucketRequired is returned when no image destination bucket is configured.
	ErrImageBucketRequired = errors.New("image bucket required")

	// ErrMissingHeader is returned for a catalog file without a header row.
	ErrMissingHeader = errors.New("catalog has no header row")

	// ErrMissingColumns is returned when required catalog columns are absent.
	ErrMissingColumns = errors.New("catalog is missing columns")
)
