package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/poiesic/retailrag/ai/mock"
	"github.com/poiesic/retailrag/core"
	"github.com/poiesic/retailrag/recommend"
	"github.com/poiesic/retailrag/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecommender struct {
	recommend func(ctx context.Context, q core.Query) (string, error)
	ping      error
}

func (s *stubRecommender) Recommend(ctx context.Context, q core.Query) (string, error) {
	return s.recommend(ctx, q)
}

func (s *stubRecommender) Ping(context.Context) error { return s.ping }

func newTestServer(t *testing.T, r Recommender) *httptest.Server {
	t.Helper()
	s, err := New(r)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/recommend", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Equal(t, ErrRecommenderRequired, err)

	_, err = New(&stubRecommender{}, WithAddr(""))
	assert.Error(t, err)

	_, err = New(&stubRecommender{}, WithHealthTimeout(0))
	assert.Error(t, err)

	s, err := New(&stubRecommender{}, WithAddr(":9090"), WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, ":9090", s.Addr())
}

func TestRecommend_Success(t *testing.T) {
	var got core.Query
	srv := newTestServer(t, &stubRecommender{recommend: func(_ context.Context, q core.Query) (string, error) {
		got = q
		return "1. Shorts", nil
	}})

	resp, out := post(t, srv, `{"text":"cycling shorts","image":"gs://shop/a.jpg"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, map[string]string{"response": "1. Shorts"}, out)
	assert.Equal(t, core.Query{Text: "cycling shorts", ImageURI: "gs://shop/a.jpg"}, got)
}

func TestRecommend_ErrorMapping(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{fmt.Errorf("%w: query needs text, image, or both", core.ErrInvalidInput), http.StatusBadRequest, "invalid input: query needs text, image, or both"},
		{core.ErrNoMatches, http.StatusNotFound, "No matching products found"},
		{fmt.Errorf("%w: after 4 attempts", core.ErrEmbeddingUnavailable), http.StatusBadGateway, "upstream service unavailable"},
		{core.ErrLLMUnavailable, http.StatusBadGateway, "upstream service unavailable"},
		{core.ErrStoreUnavailable, http.StatusBadGateway, "upstream service unavailable"},
		{core.ErrStoreTimeout, http.StatusBadGateway, "upstream service unavailable"},
		{core.ErrLLMProtocol, http.StatusInternalServerError, "internal error"},
		{core.ErrEmbeddingRejected, http.StatusInternalServerError, "internal error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			srv := newTestServer(t, &stubRecommender{recommend: func(context.Context, core.Query) (string, error) {
				return "", tc.err
			}})
			resp, out := post(t, srv, `{"text":"x"}`)
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, map[string]string{"error": tc.message}, out)
		})
	}
}

func TestRecommend_BadRequests(t *testing.T) {
	srv := newTestServer(t, &stubRecommender{recommend: func(context.Context, core.Query) (string, error) {
		t.Error("recommender must not be called")
		return "", nil
	}})

	for name, body := range map[string]string{
		"empty body":    ``,
		"malformed":     `{"text":`,
		"unknown field": `{"query":"x"}`,
		"trailing data": `{"text":"x"}{"text":"y"}`,
		"wrong type":    `{"text":42}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, out := post(t, srv, body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, out["error"])
		})
	}

	t.Run("wrong content type", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/recommend", "text/plain", strings.NewReader(`{"text":"x"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/recommend")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, &stubRecommender{recommend: func(context.Context, core.Query) (string, error) {
		return "ok", nil
	}})

	t.Run("assigned", func(t *testing.T) {
		resp, _ := post(t, srv, `{"text":"x"}`)
		_, err := uuid.Parse(resp.Header.Get(RequestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("assigned on errors", func(t *testing.T) {
		resp, _ := post(t, srv, `{`)
		assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	})

	t.Run("incoming id reused", func(t *testing.T) {
		id := uuid.NewString()
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
		require.NoError(t, err)
		req.Header.Set(RequestIDHeader, id)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, id, resp.Header.Get(RequestIDHeader))
	})

	t.Run("malformed incoming id replaced", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
		require.NoError(t, err)
		req.Header.Set(RequestIDHeader, "not-a-uuid")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.NotEqual(t, "not-a-uuid", resp.Header.Get(RequestIDHeader))
	})
}

func TestHealthz(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		srv := newTestServer(t, &stubRecommender{})
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", out["status"])
	})

	t.Run("store down", func(t *testing.T) {
		srv := newTestServer(t, &stubRecommender{ping: core.ErrStoreUnavailable})
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestRecover(t *testing.T) {
	srv := newTestServer(t, &stubRecommender{recommend: func(context.Context, core.Query) (string, error) {
		panic("boom")
	}})
	resp, out := post(t, srv, `{"text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", out["error"])
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(mark("outer"), mark("inner"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

// End to end through the recommendation service with mock models.
func TestServer_EndToEnd(t *testing.T) {
	const dim = 4
	store := memory.NewStore(dim)
	provider := mock.NewMockProvider(dim, "1. Cycling Shorts")
	svc, err := recommend.NewService(store, provider)
	require.NoError(t, err)
	srv := newTestServer(t, svc)

	t.Run("empty catalog is 404", func(t *testing.T) {
		require.NoError(t, store.ReplaceTable(context.Background(), recommend.DefaultTable, nil))
		resp, out := post(t, srv, `{"text":"shorts"}`)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "No matching products found", out["error"])
	})

	t.Run("matches", func(t *testing.T) {
		require.NoError(t, store.ReplaceTable(context.Background(), recommend.DefaultTable, []*core.Product{{
			UniqID:               "a",
			Name:                 "Cycling Shorts",
			Description:          "shorts",
			Category:             "Clothing",
			Specifications:       "{}",
			ImageURI:             "gs://shop/a_0.jpg",
			TextEmbeddings:       mock.DeterministicVector("a", dim),
			ImageEmbeddings:      mock.DeterministicVector("b", dim),
			MultimodalEmbeddings: mock.DeterministicVector("c", dim),
		}}))
		for _, body := range []string{`{"text":"shorts"}`, `{"image":"gs://shop/q.jpg"}`, `{"text":"shorts","image":"gs://shop/q.jpg"}`} {
			resp, out := post(t, srv, body)
			assert.Equal(t, http.StatusOK, resp.StatusCode, body)
			assert.Equal(t, "1. Cycling Shorts", out["response"])
		}
	})

	t.Run("invalid query is 400", func(t *testing.T) {
		resp, out := post(t, srv, `{}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, out["error"], "invalid input")
	})
}
