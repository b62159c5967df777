package observability

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server provides HTTP endpoints for observability and any extra routes
// mounted with Handle.
type Server struct {
	server *http.Server
	mux    *http.ServeMux
	addr   string
	ready  atomic.Bool
	log    zerolog.Logger
}

// NewServer creates a new HTTP server exposing metrics gathered by g.
func NewServer(addr string, g prometheus.Gatherer, log zerolog.Logger) *Server {
	s := &Server{
		mux:  http.NewServeMux(),
		addr: addr,
		log:  log,
	}

	// Prometheus metrics endpoint
	s.mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	// Health check endpoint (separate from gRPC health)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness check endpoint
	s.mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.mux,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handle mounts h on pattern, traced with OpenTelemetry. Long-lived
// connections such as WebSockets manage their own write deadlines.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.mux.Handle(pattern, otelhttp.NewHandler(h, pattern))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// SetReady sets the readiness reported by /readyz.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.SetReady(false)
	return s.server.Shutdown(ctx)
}
