package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dimfeld/ashford/internal/store"
)

// Server wraps the admin HTTP API's listener lifecycle, grounded on the
// teacher's api.Server (NewServer/ListenAndServe/Shutdown shape).
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer builds a Server ready to ListenAndServe.
func NewServer(st *store.Store, redisClient *redis.Client, lockTTLSec int, allowedOrigins CORSOrigins) *Server {
	h := NewHandlers(st, redisClient, lockTTLSec)
	return &Server{handler: SetupRoutes(h, allowedOrigins)}
}

// ListenAndServe starts the HTTP server on addr, blocking until it exits.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
