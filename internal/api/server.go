package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/dormant-leads/internal/config"
)

// Server is the HTTP API server.
type Server struct {
	handler  http.Handler
	handlers *Handlers
	server   *http.Server
}

// NewServer creates an API server over h.
func NewServer(cfg config.ServerConfig, h *Handlers, opts RouteOptions) *Server {
	return &Server{
		handler:  SetupRoutes(h, cfg, opts),
		handlers: h,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Synchronous sends (?wait=true) and manual refreshes run long.
		WriteTimeout: 2 * time.Hour,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, then cancels background sends and
// waits for them until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	if cerr := s.handlers.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
