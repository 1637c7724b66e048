package blob

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestGCSStore_PutAbandonsFailedUpload(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"name":"images/a_0.jpg","bucket":"data"}`))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	store, err := NewGCSStore(ctx, option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	source := errors.New("connection reset")
	err = store.Put(ctx, "gs://data/images/a_0.jpg", "image/jpeg", failingReader{err: source})
	require.ErrorIs(t, err, source)
	assert.Equal(t, int32(0), requests.Load(), "no object is committed")
}
