package server

import (
	"errors"
	"net/http"

	"github.com/poiesic/retailrag/core"
)

// ErrRecommenderRequired is returned when no recommender is provided.
var ErrRecommenderRequired = errors.New("recommender required")

// noMatchesMessage is the fixed body for an empty search.
const noMatchesMessage = "No matching products found"

// StatusFor maps an error from the recommendation path to an HTTP status
// and the message shown to the client.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrNoMatches):
		return http.StatusNotFound, noMatchesMessage
	case errors.Is(err, core.ErrEmbeddingUnavailable),
		errors.Is(err, core.ErrLLMUnavailable),
		errors.Is(err, core.ErrStoreUnavailable),
		errors.Is(err, core.ErrStoreTimeout):
		return http.StatusBadGateway, "upstream service unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}
