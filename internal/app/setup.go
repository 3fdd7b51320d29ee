package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nikolang/niko/db"
	"github.com/nikolang/niko/internal/chat"
	"github.com/nikolang/niko/internal/config"
	"github.com/nikolang/niko/internal/inference"
	"github.com/nikolang/niko/internal/log"
	"github.com/nikolang/niko/internal/notion"
	"github.com/nikolang/niko/internal/session"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g := genkit.Init(ctx)
	if g == nil {
		return nil, errors.New("initializing genkit")
	}
	a.Genkit = g

	a.SessionStore = session.NewFromPool(pool, logger)
	a.Sink = notion.NewSink(logger)

	prefsDir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}
	a.Prefs = config.NewPrefsStore(prefsDir)

	client, err := inference.New(ctx, inference.Config{
		APIKey:       cfg.GeminiAPIKey,
		Model:        cfg.ModelName,
		SystemPrompt: cfg.SystemPrompt,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.Inference = client

	reconciler := chat.NewReconciler(a.Sink, a.Prefs, logger)
	a.Orchestrator = chat.NewOrchestrator(a.SessionStore, client, reconciler, logger)
	a.Flow = chat.NewFlow(g, a.Orchestrator)

	logger.Info("application initialized", "model", cfg.ModelName)
	return a, nil
}

// provideOtelShutdown wires trace export before Genkit initialization
// so the TracerProvider is ready when flows start recording spans.
//
// Traces go to a local collector via OTLP HTTP; the collector handles
// authentication, buffering, and forwarding.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	agentHost := cfg.TraceAgentHost
	if agentHost == "" {
		return func() {}
	}

	// os.Setenv is not concurrent-safe, but Setup runs exactly once
	// during startup before goroutines are spawned.
	if cfg.TraceServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.TraceServiceName)
	}
	if cfg.TraceEnvironment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.TraceEnvironment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("trace export enabled",
		"agent", agentHost,
		"service", cfg.TraceServiceName,
		"environment", cfg.TraceEnvironment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations and creates a PostgreSQL connection
// pool with sensible defaults.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
