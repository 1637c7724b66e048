// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package server exposes the recommendation service over HTTP.
//
//	POST /recommend  {"text": "...", "image": "gs://..."}  ->  {"response": "..."}
//	GET  /healthz                                         ->  {"status": "ok"}
//
// Errors are returned as {"error": "..."} with 400 for invalid input, 404
// when the catalog has no match, 502 when an upstream service is down and
// 500 otherwise. Every response carries an X-Request-Id header.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/retailrag/core"
)

const (
	defaultAddr          = ":8080"
	defaultHealthTimeout = 2 * time.Second
	shutdownTimeout      = 15 * time.Second
)

// Recommender answers shopper queries.
type Recommender interface {
	Recommend(ctx context.Context, q core.Query) (string, error)
	Ping(ctx context.Context) error
}

type recommendRequest struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

type recommendResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Server serves the recommendation API.
type Server struct {
	recommender   Recommender
	addr          string
	healthTimeout time.Duration
	logger        *slog.Logger
	handler       http.Handler
}

// Option configures a Server.
type Option func(*Server) error

// WithAddr sets the listen address. Default is ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) error {
		if addr == "" {
			return errors.New("listen address must not be empty")
		}
		s.addr = addr
		return nil
	}
}

// WithHealthTimeout bounds the store ping behind /healthz.
func WithHealthTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("health timeout must be positive, got %s", d)
		}
		s.healthTimeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a server in front of recommender.
func New(recommender Recommender, opts ...Option) (*Server, error) {
	if recommender == nil {
		return nil, ErrRecommenderRequired
	}
	s := &Server{
		recommender:   recommender,
		addr:          defaultAddr,
		healthTimeout: defaultHealthTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /recommend", s.handleRecommend)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.handler = Chain(RequestID(), Logging(s.logger), Recover(s.logger))(mux)
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := ReadJSONBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := s.recommender.Recommend(r.Context(), core.Query{Text: req.Text, ImageURI: req.Image})
	if err != nil {
		status, message := StatusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("recommendation failed", "status", status, "request_id", RequestIDFrom(r.Context()), "err", err)
		}
		WriteError(w, status, message)
		return
	}
	WriteJSON(w, http.StatusOK, recommendResponse{Response: answer})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.healthTimeout)
	defer cancel()
	if err := s.recommender.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "err", err)
		WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
