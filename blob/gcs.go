package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore implements Store on Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	logger *slog.Logger
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore creates a store. Without options the client uses application
// default credentials.
func NewGCSStore(ctx context.Context, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		logger: slog.Default().With("component", "gcs-store"),
	}, nil
}

// Open returns a reader for the object.
func (s *GCSStore) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(loc.Bucket).Object(loc.Object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		return nil, err
	}
	return r, nil
}

// Put uploads the object. If r fails the upload is abandoned and no object
// is created.
func (s *GCSStore) Put(ctx context.Context, uri string, contentType string, r io.Reader) error {
	loc, err := ParseURI(uri)
	if err != nil {
		return err
	}
	// Close commits whatever was written; cancelling the writer's context
	// is the only way to discard it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.client.Bucket(loc.Bucket).Object(loc.Object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("failed to upload %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", uri, err)
	}
	s.logger.Debug("uploaded object", "uri", uri)
	return nil
}

// Exists reports whether the object exists.
func (s *GCSStore) Exists(ctx context.Context, uri string) (bool, error) {
	loc, err := ParseURI(uri)
	if err != nil {
		return false, err
	}
	_, err = s.client.Bucket(loc.Bucket).Object(loc.Object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Close closes the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
