// Package server exposes the assistant over HTTP: the request pipeline,
// streaming progress events, session context, textbook queries, and
// teaching-session feedback.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chanakya-ai/chanakya/pkg/config"
	"github.com/chanakya-ai/chanakya/pkg/feedback"
	"github.com/chanakya-ai/chanakya/pkg/logger"
	"github.com/chanakya-ai/chanakya/pkg/observability"
	"github.com/chanakya-ai/chanakya/pkg/orchestrator"
	"github.com/chanakya-ai/chanakya/pkg/rag"
)

// Server is the HTTP front of the assistant. Retrieval and feedback are
// optional; their routes answer 503 when the collaborator is absent.
type Server struct {
	cfg      config.ServerConfig
	engine   *orchestrator.Engine
	analyzer *feedback.Analyzer
	fbStore  *feedback.Store
	answers  *rag.Engine

	server *http.Server
}

// Option configures optional collaborators.
type Option func(*Server)

// WithFeedback enables the feedback routes.
func WithFeedback(analyzer *feedback.Analyzer, store *feedback.Store) Option {
	return func(s *Server) {
		s.analyzer = analyzer
		s.fbStore = store
	}
}

// WithRetrieval enables the textbook query route.
func WithRetrieval(engine *rag.Engine) Option {
	return func(s *Server) {
		s.answers = engine
	}
}

func New(cfg config.ServerConfig, engine *orchestrator.Engine, opts ...Option) *Server {
	cfg.SetDefaults()
	s := &Server{cfg: cfg, engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route tree. Exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.HTTPMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/process", s.handleProcess)
		r.Post("/process/stream", s.handleProcessStream)
		r.Get("/context/{sessionID}", s.handleGetContext)
		r.Delete("/context/{sessionID}", s.handleClearContext)
		r.Post("/query", s.handleQuery)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/feedback/{sessionID}", s.handleGetFeedback)
		r.Get("/feedback/teacher/{teacherID}", s.handleTeacherHistory)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	log := logger.GetLogger()

	s.server = &http.Server{
		Addr:    s.Address(),
		Handler: s.Handler(),
		// No WriteTimeout: it would sever long-lived SSE streams.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	log.Info("http_server_starting", "address", s.Address())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown drains in-flight requests with a bounded deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	logger.GetLogger().Info("http_server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Address returns the host:port the server binds to.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.GetLogger().Error("response_encode_failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
