// Package server provides the REST API for the interview platform:
// account and session management, timer inspection, and health checks.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mockstage/interview-platform/pkg/health"
)

// Config configures the HTTP server.
type Config struct {
	Address string
	TLSCert string
	TLSKey  string
}

// Server is the platform's HTTP front end.
type Server struct {
	httpServer *http.Server
	cfg        Config
	logger     *slog.Logger
}

// New creates a server routing API traffic to the handler. Health
// endpoints bypass authentication.
func New(cfg Config, h *Handler, checker *health.Checker, authMiddle func(http.Handler) http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", checker.LivenessHandler())
	mux.HandleFunc("GET /readyz", checker.ReadinessHandler())

	var api http.Handler = h
	if authMiddle != nil {
		api = authMiddle(h)
	}
	mux.Handle("/api/v1/", api)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins serving in a background goroutine. Listen errors other
// than graceful closure are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("http server listening", "address", s.cfg.Address, "tls", s.cfg.TLSCert != "")
		var err error
		if s.cfg.TLSCert != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
