// Package api is the HTTP transport for run lifecycle operations.
package api

import (
	"context"
	"net/http"
	"time"
)

// Config holds transport settings.
type Config struct {
	Addr           string
	StreamTimeout  time.Duration
	StreamPoll     time.Duration
	RateLimit      float64 // Run creations per second per client; 0 disables limiting
	RateLimitBurst int
}

// Server is the HTTP server for the run API.
type Server struct {
	httpServer *http.Server
}

// New creates a server for svc. metrics may be nil.
func New(cfg Config, svc RunService, health Pinger, metrics http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.Addr,
			Handler:     NewHandler(cfg, svc, health, metrics),
			ReadTimeout: 10 * time.Second,
			// Event streams stay open for up to StreamTimeout.
			WriteTimeout: cfg.StreamTimeout + 10*time.Second,
		},
	}
}

// NewHandler builds the route table.
func NewHandler(cfg Config, svc RunService, health Pinger, metrics http.Handler) http.Handler {
	h := NewHandlers(svc, health, cfg)
	limit := RateLimitMiddleware(cfg.RateLimit, cfg.RateLimitBurst)

	mux := http.NewServeMux()
	mux.Handle("POST /runs", limit(http.HandlerFunc(h.CreateRun)))
	mux.HandleFunc("GET /runs/{id}", h.GetRun)
	mux.HandleFunc("POST /runs/{id}/steps/{step}/regenerate", h.RegenerateStep)
	mux.HandleFunc("POST /runs/{id}/cancel", h.CancelRun)
	mux.HandleFunc("GET /runs/{id}/events", h.StreamEvents)
	mux.HandleFunc("GET /runs/{id}/export", h.ExportRun)
	mux.HandleFunc("GET /runs/{id}/artifacts/{name}", h.GetArtifact)
	mux.HandleFunc("GET /healthz", h.Health)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
