// screener-service runs the condition screener on a schedule and serves its
// latest result over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/api"
	"github.com/DotoriPicnic/condition-pick/internal/catalog"
	"github.com/DotoriPicnic/condition-pick/internal/config"
	"github.com/DotoriPicnic/condition-pick/internal/dispatcher"
	"github.com/DotoriPicnic/condition-pick/internal/health"
	"github.com/DotoriPicnic/condition-pick/internal/live"
	"github.com/DotoriPicnic/condition-pick/internal/observability"
	"github.com/DotoriPicnic/condition-pick/internal/runner"
	"github.com/DotoriPicnic/condition-pick/internal/screening"
	"github.com/DotoriPicnic/condition-pick/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	svcCfg := config.LoadServiceConfig()
	if err := svcCfg.Validate(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: svcCfg.SlogLevel()})))

	cat, err := catalog.Load(svcCfg.CatalogFile)
	if err != nil {
		return err
	}

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Create the screener runner
	screenerRunner, err := newRunner(svcCfg.Screener)
	if err != nil {
		return err
	}
	defer screenerRunner.Close()

	// Restore the last good result so reads are served right after a restart
	cache := screening.NewCache(store.NewJSONFile[screening.Result](svcCfg.ResultFile), metrics)
	if err := cache.Restore(ctx); err != nil {
		slog.Warn("Ignoring unreadable result file", "path", svcCfg.ResultFile, "error", err)
	}

	svc := screening.NewService(screenerRunner, cache, screening.Config{
		Spec: runner.Spec{
			Command: svcCfg.Screener.Command,
			Args:    svcCfg.Screener.Args,
			Env:     svcCfg.Screener.Env,
			Dir:     svcCfg.Screener.Dir,
			Timeout: svcCfg.Screener.Timeout,
		},
		RefreshInterval: svcCfg.RefreshInterval,
		BootstrapMode:   svcCfg.BootstrapMode,
	}, metrics)

	// Live updates
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	hub := live.NewHub(16, metrics)
	go hub.Run(hubCtx)
	svc.AddNotifier(hub)

	healthOpts := []health.Option{
		health.WithFreshness(func() (time.Time, bool) {
			_, updated, ok := cache.Get()
			return updated, ok
		}, staleAfter(svcCfg.RefreshInterval)),
	}

	// Optional webhook delivery
	var eventDispatcher *dispatcher.MemoryDispatcher
	if len(svcCfg.WebhookURLs) > 0 {
		eventDispatcher = dispatcher.NewMemory(dispatcher.LoadConfigFromEnv(), metrics)
		svc.AddNotifier(dispatcher.NewPublisher(eventDispatcher, svcCfg.WebhookURLs, svcCfg.WebhookKey))
		healthOpts = append(healthOpts, health.WithBreakers(eventDispatcher.Unavailable))
		slog.Info("Webhook delivery enabled", "subscribers", len(svcCfg.WebhookURLs), "signed", svcCfg.WebhookKey != "")
	}

	// Create health checker
	healthChecker := health.NewChecker(svc, healthOpts...)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Catalog:       cat,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Live:          live.NewHandler(hub, svc, live.DefaultConfig()),
	})

	// Create API server. A manual run holds its request open for the whole
	// screener run, so the write timeout must outlast RUN_TIMEOUT.
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: svcCfg.Screener.Timeout + svcCfg.Screener.KillGrace + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 2)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	svc.Start()
	slog.Info("Screener service started",
		"backend", svcCfg.Screener.Backend,
		"refreshInterval", svcCfg.RefreshInterval,
		"bootstrapMode", svcCfg.BootstrapMode,
		"conditions", cat.Len(),
	)

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		svc.Close()
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Stop the scheduler and terminate any running screener, so
	// in-flight manual runs return and their requests can complete
	slog.Info("Stopping screening service")
	svc.Close()

	// Phase 3: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)
	stopHub()

	// Phase 4: Drain webhook dispatcher
	if eventDispatcher != nil {
		slog.Info("Draining webhook dispatcher")
		dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dispatcherCancel()
		if err := eventDispatcher.Close(dispatcherCtx); err != nil {
			slog.Warn("Dispatcher shutdown error", "error", err)
		}

		stats := eventDispatcher.Stats()
		slog.Info("Dispatcher stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}

	slog.Info("Shutdown complete")
	return nil
}

func newRunner(cfg config.ScreenerConfig) (runner.Runner, error) {
	switch cfg.Backend {
	case config.BackendDocker:
		r, err := runner.NewDockerRunner(runner.DockerConfig{
			Image:      cfg.Image,
			KillGrace:  cfg.KillGrace,
			Encoding:   cfg.Encoding,
			ExtraHosts: cfg.ExtraHosts,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("Connected to Docker daemon", "image", cfg.Image)
		return r, nil
	default:
		return runner.NewExecRunner(runner.ExecConfig{
			Command:   cfg.Command,
			KillGrace: cfg.KillGrace,
			Encoding:  cfg.Encoding,
		}), nil
	}
}

// staleAfter is how old a cached result may get before readiness reports
// it as degraded: three missed refreshes.
func staleAfter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return 3 * interval
}
