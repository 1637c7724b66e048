// Package blob provides object-store access for catalog files and product images.
//
// Objects are addressed with gs://<bucket>/<object> URIs. The GCS implementation
// talks to Google Cloud Storage; the memory implementation backs tests and
// local runs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNotFound indicates the object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidURI indicates a URI that is not gs://<bucket>/<object>.
	ErrInvalidURI = errors.New("invalid object uri")
)

// Store reads and writes objects.
// Implementations must be safe for concurrent use.
type Store interface {
	// Open returns a reader for the object. Returns ErrNotFound if it does not exist.
	Open(ctx context.Context, uri string) (io.ReadCloser, error)

	// Put writes the object, replacing any existing content.
	Put(ctx context.Context, uri string, contentType string, r io.Reader) error

	// Exists reports whether the object exists.
	Exists(ctx context.Context, uri string) (bool, error)

	// Close releases resources held by the store.
	Close() error
}

// Location is a parsed gs:// URI.
type Location struct {
	Bucket string
	Object string
}

// String renders the location as a gs:// URI.
func (l Location) String() string {
	return "gs://" + l.Bucket + "/" + l.Object
}

// ParseURI splits a gs://<bucket>/<object> URI.
func ParseURI(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return Location{}, fmt.Errorf("%w: %q lacks gs:// scheme", ErrInvalidURI, uri)
	}
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return Location{}, fmt.Errorf("%w: %q", ErrInvalidURI, uri)
	}
	return Location{Bucket: bucket, Object: object}, nil
}

// Join builds a gs:// URI from a bucket and path segments.
func Join(bucket string, segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return Location{Bucket: strings.TrimPrefix(bucket, "gs://"), Object: strings.Join(parts, "/")}.String()
}
