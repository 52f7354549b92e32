// Copyright 2026 Aperture OSS Authors
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


// Package server implements the HTTP server that exposes the knowledge
// engine via a REST API: indexing, semantic search, answer composition,
// and collection deletion, plus health and Prometheus metrics endpoints.
// The server is started by the `knowledge serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aperture-oss/knowledge/core"
	"github.com/aperture-oss/knowledge/index"
	"github.com/aperture-oss/knowledge/internal/logging"
	"github.com/aperture-oss/knowledge/query"
)

// New constructs a Server from the provided engine and config.
// Metrics are registered against reg; pass prometheus.NewRegistry() in
// tests to stay hermetic, or prometheus.DefaultRegisterer in production.
func New(engine Engine, cfg *Config, reg *prometheus.Registry) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover answer generation.
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		engine:  engine,
		cfg:     cfg,
		log:     logging.Component(cfg.Logger, "server"),
		metrics: newServerMetrics(reg),
	}

	limiter, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	route := func(handler string, h http.HandlerFunc) http.Handler {
		return requestLogger(s.log, s.metrics, handler, limiter.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/index", route("index", s.handleIndex))
	mux.Handle("POST /api/query", route("query", s.handleQuery))
	mux.Handle("POST /api/search", route("search", s.handleSearch))
	mux.Handle("POST /api/delete", route("delete", s.handleDelete))
	mux.Handle("GET /api/health", route("health", s.handleHealth))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// Handler exposes the configured mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// handleIndex handles POST /api/index requests.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.CollectionId == "" {
		writeError(w, http.StatusBadRequest, "collection_id is required", "")
		return
	}
	if len(req.Fields) == 0 {
		writeError(w, http.StatusBadRequest, "fields is required", "")
		return
	}

	var opts *index.IndexOptions
	if len(req.Attributes) > 0 {
		opts = &index.IndexOptions{Attributes: req.Attributes}
	}

	indexed, err := s.engine.Index(r.Context(), req.CollectionId, req.Fields, opts)
	if err != nil {
		var partial *index.PartialError
		if errors.As(err, &partial) {
			// Partial success: the stored fields stay, the response names
			// what failed.
			s.metrics.indexedFieldsTotal.Add(float64(indexed))
			writeJSON(w, http.StatusOK, indexResponse{
				Indexed: indexed,
				Failed:  partial.Categories(),
			})
			return
		}
		if errors.Is(err, core.ErrEmptyCollectionID) || errors.Is(err, index.ErrNoFields) {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		logging.FromContext(r.Context()).Error("index failed", "err", err)
		writeError(w, http.StatusInternalServerError, "indexing failed", "")
		return
	}

	s.metrics.indexedFieldsTotal.Add(float64(indexed))
	writeJSON(w, http.StatusOK, indexResponse{Indexed: indexed})
}

// handleQuery handles POST /api/query: retrieval plus answer composition.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r, defaultAnswerTopK)
	if !ok {
		return
	}

	start := time.Now()
	response, err := s.engine.Answer(r.Context(), q)
	s.metrics.queryDurationSeconds.WithLabelValues("query").Observe(time.Since(start).Seconds())

	if err != nil {
		s.writeQueryError(w, r, "query", err)
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues("query", "ok").Inc()
	sources := response.Sources
	if sources == nil {
		sources = []query.Source{}
	}
	writeJSON(w, http.StatusOK, answerResponse{
		Answer:     response.Answer,
		Confidence: response.Confidence,
		Sources:    sources,
	})
}

// handleSearch handles POST /api/search: raw ranked retrieval.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuery(w, r, defaultSearchTopK)
	if !ok {
		return
	}

	start := time.Now()
	response, err := s.engine.Search(r.Context(), q)
	s.metrics.queryDurationSeconds.WithLabelValues("search").Observe(time.Since(start).Seconds())

	if err != nil {
		s.writeQueryError(w, r, "search", err)
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues("search", "ok").Inc()
	results := make([]searchResult, len(response.Results))
	for i, result := range response.Results {
		results[i] = searchResult{
			CollectionId: result.Record.CollectionId,
			Category:     result.Record.Category,
			Text:         result.Record.Text,
			Similarity:   result.Similarity,
			CreatedAt:    result.Record.CreatedAt,
			Attributes:   result.Record.Attributes,
		}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results, Total: response.Total})
}

// handleDelete handles POST /api/delete.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if req.CollectionId == "" {
		writeError(w, http.StatusBadRequest, "collection_id is required", "")
		return
	}

	deleted, err := s.engine.DeleteCollection(r.Context(), req.CollectionId)
	if err != nil {
		logging.FromContext(r.Context()).Error("delete failed", "err", err)
		writeError(w, http.StatusInternalServerError, "deletion failed", "")
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeQuery parses and validates the shared query request shape.
// A nil top_k falls back to the endpoint default; an explicit non-positive
// value is a client error.
func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request, defaultTopK int) (query.Query, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return query.Query{}, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", string(query.StageValidate))
		return query.Query{}, false
	}

	topK := defaultTopK
	if req.TopK != nil {
		if *req.TopK <= 0 {
			writeError(w, http.StatusBadRequest, "top_k must be greater than 0", string(query.StageValidate))
			return query.Query{}, false
		}
		topK = *req.TopK
	}

	return query.Query{
		Text:         req.Query,
		CollectionId: req.CollectionId,
		Category:     req.Category,
		TopK:         topK,
	}, true
}

// writeQueryError maps an orchestrator error onto an HTTP status, keeping
// the failing stage visible to the client.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	var stageError *query.StageError
	if errors.As(err, &stageError) && stageError.Stage == query.StageValidate {
		s.metrics.queryRequestsTotal.WithLabelValues(endpoint, "invalid").Inc()
		writeError(w, http.StatusBadRequest, stageError.Err.Error(), string(stageError.Stage))
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues(endpoint, "error").Inc()
	logging.FromContext(r.Context()).Error("retrieval failed", "endpoint", endpoint, "err", err)

	stage := ""
	if stageError != nil {
		stage = string(stageError.Stage)
	}
	writeError(w, http.StatusBadGateway, "retrieval failed", stage)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, stage string) {
	writeJSON(w, status, errorResponse{Error: message, Stage: stage})
}
