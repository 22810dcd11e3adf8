// Package server wires the daemon's HTTP surface together: routing,
// middleware, TLS, and graceful shutdown.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arturkryukov/dapfncache/internal/api/handlers"
	"github.com/arturkryukov/dapfncache/internal/api/middleware"
	"github.com/arturkryukov/dapfncache/internal/config"
)

// Handlers bundles the concrete handlers Server routes to. Auth is nil
// when no usable JWKS URL was configured, in which case the admin
// endpoints are still mounted, without authentication or scope checks.
type Handlers struct {
	DAP     *handlers.DAPHandler
	Catalog *handlers.CatalogHandler
	Health  *handlers.HealthHandler
	Admin   *handlers.AdminHandler
	Auth    *middleware.JWTAuth
}

// Server is the daemon's HTTP server, with TLS and graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New builds a Server with routing, middleware, and TLS configured
// from cfg, but does not start listening.
func New(cfg *config.Config, logger *slog.Logger, h Handlers) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Metrics())

	router.Get("/dap/*", h.DAP.ServeHTTP)
	router.Get("/catalog", h.Catalog.ServeHTTP)
	router.Get("/catalog/search", h.Catalog.Search)
	router.Get("/health/live", h.Health.Live)
	router.Get("/health/ready", h.Health.Ready)
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(admin chi.Router) {
		if h.Auth != nil {
			admin.Use(h.Auth.Middleware())
			admin.Use(middleware.RequireScope(middleware.ScopeCacheAdmin))
		}
		admin.Get("/admin/cache/stats", h.Admin.Stats)
		admin.Post("/admin/cache/evict", h.Admin.Evict)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Server{httpServer: srv, logger: logger, cfg: cfg}
}

// Run starts the server and blocks until it receives SIGINT/SIGTERM or
// the listener fails, then performs a graceful shutdown bounded by
// cfg.ShutdownTimeout.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server starting",
			slog.String("addr", s.httpServer.Addr),
			slog.Bool("tls", s.cfg.TLSCert != ""),
		)

		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}
