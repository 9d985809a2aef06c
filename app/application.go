// Package app exposes the lifecycle controller over a thin HTTP admin
// surface for manual/ops use: health, status, metrics snapshot, historical
// and dashboard queries, and an SSE stream of lifecycle events. It is the
// external-collaborator-facing layer, analogous to the teacher's
// internal/app/handlers package.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sslproxymanager/core/internal/lifecycle"
	"github.com/sslproxymanager/core/internal/logger"
)

// Config controls the admin HTTP surface's own bind address and timeouts,
// independent of any HTTP/WS/Stream listener the lifecycle controller runs.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Application wires a lifecycle.Controller to a ServeMux-routed admin API.
type Application struct {
	cfg        Config
	controller *lifecycle.Controller
	log        *logger.StyledLogger
	registry   *routeRegistry
	server     *http.Server
	errCh      chan error
}

func New(cfg Config, controller *lifecycle.Controller, log *logger.StyledLogger) *Application {
	return &Application{
		cfg:        cfg,
		controller: controller,
		log:        log,
		registry:   newRouteRegistry(log),
		server:     &http.Server{Addr: cfg.Addr, ReadTimeout: cfg.ReadTimeout, WriteTimeout: cfg.WriteTimeout},
		errCh:      make(chan error, 1),
	}
}

// Start brings up every managed service via the lifecycle controller, then
// starts the admin HTTP surface itself.
func (a *Application) Start(ctx context.Context) error {
	if err := a.controller.Start(ctx); err != nil {
		return fmt.Errorf("lifecycle start: %w", err)
	}

	mux := http.NewServeMux()
	a.registerRoutes()
	a.registry.wireUp(mux)
	a.server.Handler = mux

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin HTTP server error", "error", err)
			a.errCh <- err
		}
	}()

	a.log.InfoWithListener("admin surface started", a.cfg.Addr)
	return nil
}

// Stop shuts down the admin HTTP surface first, then every managed service.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("admin HTTP server shutdown error", "error", err)
	}
	return a.controller.Stop(shutdownCtx)
}

func (a *Application) registerRoutes() {
	a.registry.register("/healthz", a.healthHandler, "liveness probe", "GET")
	a.registry.register("/status", a.statusHandler, "lifecycle running/starting state", "GET")
	a.registry.register("/metrics/snapshot", a.metricsSnapshotHandler, "sharded real-time metrics snapshot", "GET")
	a.registry.register("/metrics/historical", a.metricsHistoricalHandler, "time-bucketed historical query", "GET")
	a.registry.register("/metrics/dashboard", a.metricsDashboardHandler, "top-N dashboard summary", "GET")
	a.registry.register("/events", a.eventsHandler, "server-sent lifecycle event stream", "GET")
	a.registry.register("/logs", a.getLogsHandler, "buffered recent log tail", "GET")
	a.registry.register("/logs/clear", a.clearLogsHandler, "discard the buffered log tail", "POST")
	a.registry.register("/logs/requests", a.queryRequestLogsHandler, "raw request-log query", "GET")
	a.registry.register("/blacklist", a.getBlacklistHandler, "list blacklist entries", "GET")
	a.registry.register("/blacklist/add", a.addBlacklistHandler, "add a blacklist entry", "POST")
	a.registry.register("/blacklist/remove", a.removeBlacklistHandler, "remove a blacklist entry", "POST")

	if gatherer := a.controller.PrometheusGatherer(); gatherer != nil {
		a.registry.register("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP, "Prometheus scrape endpoint", "GET")
	}
}
