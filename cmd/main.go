package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/teamcap/internal/adapters/http/api"
	"github.com/okian/teamcap/internal/adapters/http/swagger"
	"github.com/okian/teamcap/internal/adapters/repository"
	"github.com/okian/teamcap/internal/adapters/selector"
	app "github.com/okian/teamcap/internal/app"
	"github.com/okian/teamcap/internal/config"
	"github.com/okian/teamcap/internal/domain/allocation"
	"github.com/okian/teamcap/internal/domain/capacity"
	"github.com/okian/teamcap/internal/domain/ranking"
	"github.com/okian/teamcap/pkg/logger"
	"github.com/okian/teamcap/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := newHTTPServer(ctx, cfg.Addr, svc)
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// buildService wires the store, the selector and the engine from cfg.
func buildService(cfg *config.Config, log logger.Logger) (*app.Service, error) {
	store, err := repository.Open(cfg.StoreDriver, cfg.SQLitePath, log.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	engine, err := buildEngine(cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithEngine(engine),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithMaxBatchSize(cfg.MaxBatchSize),
	), nil
}

// buildEngine configures ranking, capacity and the optional selection step.
func buildEngine(cfg *config.Config, log logger.Logger) (*allocation.Engine, error) {
	opts := []allocation.Option{
		allocation.WithLogger(log.Named("allocation")),
		allocation.WithCalculator(capacity.New(capacity.WithGridCapacity(cfg.GridCapacity))),
		allocation.WithRanker(ranking.New(ranking.WithWeights(ranking.Weights{
			Skill:       cfg.SkillWeight,
			Batch:       cfg.BatchPenalty,
			Utilization: cfg.UtilizationPenalty,
		}))),
		allocation.WithLimits(cfg.ScorecardLimit, cfg.EligibilityLimit),
		allocation.WithMode(allocation.Mode(cfg.SelectorMode)),
		allocation.WithConcurrency(cfg.SelectorConcurrency),
		allocation.WithSelectorTimeout(time.Duration(cfg.SelectorTimeoutMS) * time.Millisecond),
	}

	switch {
	case cfg.SimulateSelector:
		opts = append(opts, allocation.WithSelector(selector.NewSimulatedSelector(
			selector.WithLatencyRange(
				time.Duration(cfg.SimulatedLatencyMinMS)*time.Millisecond,
				time.Duration(cfg.SimulatedLatencyMaxMS)*time.Millisecond),
		)))
		log.Info(context.Background(), "using simulated selector")
	case cfg.SelectorURL != "":
		sel, err := selector.NewHTTPSelector(cfg.SelectorURL, selector.WithHTTPLogger(log.Named("selector")))
		if err != nil {
			return nil, fmt.Errorf("failed to create selector: %w", err)
		}
		opts = append(opts, allocation.WithSelector(sel))
		log.Info(context.Background(), "using external selector", logger.String("url", cfg.SelectorURL))
	default:
		log.Info(context.Background(), "no selector configured; allocating greedily")
	}
	return allocation.New(opts...), nil
}

func newHTTPServer(ctx context.Context, addr string, svc *app.Service) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(mux)
	swagger.Register(ctx, mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the gauges that GetStats maintains.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
