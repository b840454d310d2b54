// Package httpapi exposes the inbound webhook endpoint, the health and
// metrics endpoints, and the admin endpoints used for integration testing
// of the rule engine.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/alphawatch/alphawatch/internal/engine"
	"github.com/alphawatch/alphawatch/internal/metrics"
	"github.com/alphawatch/alphawatch/internal/store"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// ServerConfig holds listener configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the webhook/admin HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	handler *Handlers
	log     zerolog.Logger
}

// NewServer builds the server and its routes.
func NewServer(cfg ServerConfig, pipeline *engine.Pipeline, windows store.WindowStore, reg *metrics.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		handler: NewHandlers(pipeline, windows, logger),
		log:     logger.With().Str("component", "http").Logger(),
	}

	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/webhook/helius", s.handler.Webhook).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.handler.Health).Methods(http.MethodGet)
	s.router.Handle("/metrics", reg.Handler()).Methods(http.MethodGet)

	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/inject", s.handler.Inject).Methods(http.MethodPost)
	admin.HandleFunc("/evaluate/{token}", s.handler.Evaluate).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.handler.NotFound)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
