package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/irqd/internal/events"
	"github.com/mattjoyce/irqd/internal/interrupt"
	"github.com/mattjoyce/irqd/internal/journal"
)

// InterruptQueue is the queue surface the API needs.
type InterruptQueue interface {
	Len() int
	Pending() int
	Snapshot() []interrupt.Event
}

// Intake accepts raised interrupts. Submit must fail once Draining reports
// true so nothing is enqueued behind a finished dispatch loop.
type Intake interface {
	Draining() bool
	Submit(ev interrupt.Event) error
}

// JournalReader reads handled outcomes.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	Summary(ctx context.Context) (map[string]int, error)
}

// MetricsSource exposes a flattened metric snapshot.
type MetricsSource interface {
	Snapshot(ctx context.Context) (map[string]float64, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	APIKey string
}

// Deps are the collaborators behind the routes. Journal and Metrics may be
// nil; their routes then report 404.
type Deps struct {
	Queue   InterruptQueue
	Intake  Intake
	Journal JournalReader
	Metrics MetricsSource
	Hub     *events.Hub
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Hub == nil {
		deps.Hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves on config.Listen until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// WriteTimeout stays zero so /events can stream.
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/interrupts", s.handleRaise)
		r.Get("/queue", s.handleQueue)
		r.Get("/journal", s.handleJournal)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
