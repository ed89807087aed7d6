package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/adforge/internal/app"
)

// Server manages the HTTP server and routes
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
}

// New creates a new HTTP server with the given app
func New(application *app.App) *Server {
	s := &Server{
		app: application,
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.withConditionalMiddleware(s.router),
		ReadTimeout: 15 * time.Second,
		// POST /api/campaigns answers only after drafting, which can take a while
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler with middleware, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.app.Logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	s.app.Logger.Info().
		Str("url", fmt.Sprintf("http://%s", s.server.Addr)).
		Str("ws", fmt.Sprintf("ws://%s/ws", s.server.Addr)).
		Msg("API available")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.app.Logger.Info().Msg("HTTP server stopped")
	return nil
}
