// Package main is the entrypoint for the swing analysis API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai"
	"github.com/pffise-create/PinhighAI-sub003/internal/analysis"
	"github.com/pffise-create/PinhighAI-sub003/internal/api"
	"github.com/pffise-create/PinhighAI-sub003/internal/api/handler"
	mw "github.com/pffise-create/PinhighAI-sub003/internal/api/middleware"
	"github.com/pffise-create/PinhighAI-sub003/internal/cache"
	"github.com/pffise-create/PinhighAI-sub003/internal/config"
	"github.com/pffise-create/PinhighAI-sub003/internal/frames"
	"github.com/pffise-create/PinhighAI-sub003/internal/metrics"
	"github.com/pffise-create/PinhighAI-sub003/internal/orchestrator"
	"github.com/pffise-create/PinhighAI-sub003/internal/queue"
	"github.com/pffise-create/PinhighAI-sub003/internal/recovery"
	"github.com/pffise-create/PinhighAI-sub003/internal/store"
	"github.com/pffise-create/PinhighAI-sub003/internal/tracing"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 30 * time.Second

// version is set at build time with -ldflags.
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast when it is invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"fallback_provider", cfg.AI.FallbackProvider,
		"store", cfg.Database.Driver,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Tracing and metrics
	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			slog.Warn("tracing shutdown", "error", err)
		}
	}()
	m := newMetrics(cfg.Telemetry.MetricsEnabled)

	// 3. Open the job store and apply migrations
	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()
	slog.Info("store ready", "driver", cfg.Database.Driver)

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider
	provider, err := ai.NewFromConfig(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	slog.Info("AI provider initialized", "provider", provider.Name())

	prompts, err := analysis.LoadPrompts(cfg.Analysis.PromptsDir)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	// 6. Orchestrator and recovery
	analysisCfg := analysis.Config{
		MaxImagesPerCall: cfg.Analysis.MaxImagesPerCall,
		MaxTokens:        cfg.AI.MaxTokens,
		Metrics:          m,
	}
	orch := orchestrator.New(orchestrator.Deps{
		Store:        st,
		Cache:        redisCache,
		Frames:       frames.NewResolver(frames.NewHTTPFetcher(cfg.Frames)),
		Analyzer:     analysis.NewBatchAnalyzer(provider, prompts, analysisCfg),
		Consolidator: analysis.NewConsolidator(provider, prompts, analysisCfg),
		Metrics:      m,
		ProviderName: provider.Name(),
		RunTimeout:   cfg.Analysis.RunTimeout,
	})
	monitor := recovery.NewMonitor(st, orch, recovery.Config{
		MinRetryInterval: cfg.Recovery.MinRetryInterval,
		Metrics:          m,
	})

	// 7. Optional queue consumer
	consumerDone := make(chan struct{})
	if cfg.Queue.Enabled {
		q := queue.NewRedisQueue(redisCache.Client(), cfg.Queue.Key, cfg.Queue.PollTimeout)
		go func() {
			defer close(consumerDone)
			if err := q.Consume(ctx, dispatchTrigger(orch)); err != nil {
				slog.Error("queue consumer stopped", "error", err)
			}
		}()
	} else {
		close(consumerDone)
	}

	// 8. Build router with dependencies
	router := buildRouter(cfg, st, redisCache, orch, monitor, m)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Analysis.RunTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-consumerDone
	if err := orch.Wait(shutdownCtx); err != nil {
		slog.Warn("in-flight analyses did not finish before shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore connects to the configured backend and brings its schema up to
// date. The returned func releases the connection.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, func() { s.Close() }, nil

	case "postgres":
		pool, err := store.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
		return store.NewPostgresStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func newMetrics(enabled bool) *metrics.Metrics {
	if !enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.New(reg)
}

func buildRouter(cfg *config.Config, st store.Store, c cache.Cache, orch *orchestrator.Orchestrator, rec *recovery.Monitor, m *metrics.Metrics) http.Handler {
	jobs := handler.NewJobs(st, rec)
	triggers := handler.NewTriggers(orch)
	keys := handler.NewKeys(st)

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(c, cfg.Server.RateLimitPerMinute),
		Metrics:   m,

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": st,
			"cache":    c,
		}),
		CreateJobHandler: jobs.Create,
		PollJobHandler:   jobs.Get,
		JobRecordHandler: jobs.GetRecord,
		ProgressHandler:  jobs.Progress,
		TriggerHandler:   triggers.Create,
		CreateKeyHandler: keys.Create,
		ListKeysHandler:  keys.List,
		RevokeKeyHandler: keys.Revoke,
	})
}

// dispatcher is the orchestrator entry point used by the queue consumer.
type dispatcher interface {
	Dispatch(ctx context.Context, t models.Trigger) error
}

// dispatchTrigger adapts a dispatcher to a queue handler. Triggers for jobs
// that are already complete are dropped by Dispatch.
func dispatchTrigger(d dispatcher) queue.Handler {
	return func(ctx context.Context, t models.Trigger) error {
		if err := d.Dispatch(ctx, t); err != nil {
			return fmt.Errorf("dispatch queued trigger for job %s: %w", t.JobID, err)
		}
		return nil
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
