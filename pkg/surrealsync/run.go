package surrealsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Run starts the sync daemon and blocks until ctx is cancelled or the HTTP
// server fails.
//
// # Endpoints
//
//	GET  /api/health              - store connectivity and listener count
//	GET  /api/sync/stats?days=N   - sync statistics (default 7 days)
//	GET  /api/sync/failed?limit=N - unresolved sync errors (default 50)
//	POST /api/sync/retry          - run one retry pass
//	GET  /metrics                 - Prometheus metrics
//
// Besides the server, Run drains the outbox every Sync.OutboxInterval and
// retries due sync errors every Sync.RetryInterval. On shutdown the listeners
// and the server get Server.ShutdownTimeout to finish.
func (a *App) Run(ctx context.Context, _ *RunCommand) error {
	listeners, err := a.engine.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to start listeners: %w", err)
	}
	a.logger.Info().Int("listeners", listeners).Msg("Listeners started")

	server := &http.Server{
		Addr:              a.config.Server.Addr,
		Handler:           a.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", server.Addr).Msg("Starting ops server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.engine.RunOutbox(gctx, a.config.Sync.OutboxInterval, a.config.Sync.OutboxRetention)
	})
	g.Go(func() error {
		return a.engine.RunRetries(gctx, a.config.Sync.RetryInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.config.Server.ShutdownTimeout)
		defer cancel()
		a.engine.Shutdown(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) router() *mux.Router {
	router := mux.NewRouter()
	router.Use(a.logRequests)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/sync/stats", a.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/sync/failed", a.handleFailed).Methods(http.MethodGet)
	api.HandleFunc("/sync/retry", a.handleRetry).Methods(http.MethodPost)

	router.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}
