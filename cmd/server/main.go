// Command server runs the pipeline on a cron schedule and serves stored
// results over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"btc-signal-lab/internal/api"
	"btc-signal-lab/internal/app"
	"btc-signal-lab/internal/config"
	"btc-signal-lab/internal/logging"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/pipeline"
	"btc-signal-lab/internal/strategy"
)

func main() {
	loadEnvFile()

	configPath := flag.String("config", "config.yaml", "Path to YAML config (optional)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	schedule := flag.String("schedule", "", "Cron schedule with seconds field (overrides config)")
	runOnStart := flag.Bool("run-on-start", false, "Run the pipeline once at startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *schedule != "" {
		cfg.Server.Schedule = *schedule
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	logger = logging.Component(logger, "server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	filter, err := strategy.FilterFromConfig(cfg.FilterDomainConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("build entry filter")
	}
	rule, err := strategy.ExitFromConfig(cfg.ExitDomainConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("build exit rule")
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer stores.Close()

	server := &Server{
		filter:    filter,
		rule:      rule,
		workers:   cfg.Simulation.Workers,
		outputDir: cfg.Data.OutputDir,
		load: func(ctx context.Context) (pipeline.Input, error) {
			return app.LoadInput(ctx, cfg, stores, observability.DefaultMetrics)
		},
		signalStore:    stores.Signals,
		exitEventStore: stores.Exits,
		aggregateStore: stores.Aggregates,
		lockTTL:        cfg.Cache.LockTTL,
		metrics:        observability.DefaultMetrics,
		logger:         logger,
		started:        time.Now(),
	}

	producer, err := app.OpenPublisher(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open publisher")
	}
	if producer != nil {
		defer producer.Close()
		server.publisher = producer
	}

	apiOpts := api.Options{
		SignalStore:       stores.Signals,
		ExitEventStore:    stores.Exits,
		AggregateStore:    stores.Aggregates,
		DefaultStrategyID: filter.ID(),
		DefaultExitRuleID: rule.ID(),
		CacheTTL:          cfg.Cache.TTL,
		Status:            func() any { return server.Status() },
		Logger:            logger,
	}

	redisCache, err := app.OpenCache(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("open cache")
	}
	if redisCache != nil {
		defer redisCache.Close()
		server.lock = redisCache
		server.cache = redisCache
		apiOpts.Cache = redisCache
	}

	httpServer := api.New(apiOpts)

	// Channel to signal completion
	done := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
		cancel()

		select {
		case sig := <-sigCh:
			logger.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(cfg.Server.ShutdownTimeout + 30*time.Second):
			logger.Error().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	httpErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		httpErr <- httpServer.Start(cfg.Server.Addr)
	}()

	if err := server.Schedule(ctx, cfg.Server.Schedule); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	if *runOnStart {
		go server.runPipeline(ctx)
	}

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
		cancel()
	}

	server.StopScheduler()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("http shutdown")
	}
	close(done)

	logger.Info().Msg("shutdown complete")
}

// loadEnvFile loads environment variables from .env if it exists.
// Variables already set in the environment win.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, strings.Trim(strings.TrimSpace(value), `"`))
		}
	}
}
