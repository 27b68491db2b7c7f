// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"rag-assistant/internal/config"
	"rag-assistant/internal/history"
	"rag-assistant/internal/metrics"
	"rag-assistant/internal/models"
)

// Answerer is the query path.
type Answerer interface {
	Answer(ctx context.Context, query string, topK int) models.AnswerResult
}

// Ingester loads a server-local file into the store.
type Ingester interface {
	IngestFile(ctx context.Context, path, sourceID string) (*models.IngestionReport, error)
}

type Server struct {
	rag      Answerer
	ingester Ingester
	history  history.Recorder
	config   *config.ServerConfig
	server   *http.Server
}

// NewServer builds the server. ingester and recorder may be nil, which
// disables the ingest and history routes. The ingest route also needs
// cfg.IngestDir.
func NewServer(rag Answerer, ingester Ingester, recorder history.Recorder, cfg *config.ServerConfig) *Server {
	return &Server{rag: rag, ingester: ingester, history: recorder, config: cfg}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}

	r.Post("/chat", s.handleChat)
	if s.history != nil {
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
	}
	if s.ingester != nil && s.config.IngestDir != "" {
		r.Post("/ingest", s.handleIngest)
	}
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info().Str("addr", s.config.Addr).Msg("Starting server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Handled request")
	})
}
