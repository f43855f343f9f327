// Package server wires the chi router and runs the HTTP listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/library-locator/internal/core/config"
	"github.com/mohammed-shakir/library-locator/internal/core/health"
	middleware "github.com/mohammed-shakir/library-locator/internal/core/middleware"
	"github.com/mohammed-shakir/library-locator/internal/core/router"
)

type Options struct {
	Handlers *router.Handlers
	// Metrics is mounted at cfg.Metrics.Path when non-nil.
	Metrics http.Handler
	Ready   map[string]health.Check
}

// NewRouter builds the API routes.
func NewRouter(cfg config.Config, logger *slog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, opts.Ready))
	if opts.Metrics != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}
	r.Get(router.RouteLibraries, opts.Handlers.Libraries())
	r.Get(router.RouteNearest, opts.Handlers.Nearest())
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(cfg, logger, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// catalog searches may take up to CatalogSearchTimeout twice over
		WriteTimeout: 2*cfg.CatalogSearchTimeout + cfg.GeocoderTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
