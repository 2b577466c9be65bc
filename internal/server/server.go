// Package server exposes the data layer over HTTP for the map dashboard.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trafficlens/datalayer/internal/estimate"
	"github.com/trafficlens/datalayer/internal/health"
	imw "github.com/trafficlens/datalayer/internal/middleware"
	"github.com/trafficlens/datalayer/internal/poller"
)

type API struct {
	log       *slog.Logger
	estimates *estimate.Cache
	live      *poller.Poller
}

func NewAPI(log *slog.Logger, estimates *estimate.Cache, live *poller.Poller) *API {
	return &API{log: log, estimates: estimates, live: live}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(imw.Recover(a.log))
	r.Use(imw.Logging(a.log))
	r.Use(imw.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(a.live.Ready))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/estimate", a.handleEstimate)
		r.Post("/estimate/batch", a.handleEstimateBatch)
		r.Get("/chokepoints", a.handleChokepoints)
		r.Post("/chokepoints/refresh", a.handleRefresh)
		r.Get("/cache/stats", a.handleCacheStats)
		r.Delete("/cache", a.handleCacheClear)
	})

	return r
}

// Run serves the API until ctx is canceled, then drains in-flight requests.
func Run(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listen", "addr", addr)
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
