package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/geojson-viewer/internal/core/health"
	middleware "github.com/mohammed-shakir/geojson-viewer/internal/core/middleware"
	"github.com/mohammed-shakir/geojson-viewer/internal/core/router"
)

type Options struct {
	Store       health.Pinger
	Ingest      health.ReadinessReporter
	Metrics     http.Handler
	MetricsPath string
}

// NewHandler assembles the middleware chain, probes, metrics and the
// session API.
func NewHandler(logger *slog.Logger, api *router.API, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if opts.Store != nil {
		r.Get("/readyz", health.Readiness(opts.Store, opts.Ingest))
	}
	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}
	api.Routes(r)
	return r
}

// Run serves h on addr until ctx is canceled.
func Run(ctx context.Context, addr string, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
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
