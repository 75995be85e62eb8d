// Command ingest parses the price and feature CSV exports and loads them
// into ClickHouse. Dates already stored are skipped, so re-running with a
// longer export appends only the new days.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"btc-signal-lab/internal/app"
	"btc-signal-lab/internal/config"
	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/logging"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/storage"
	chstore "btc-signal-lab/internal/storage/clickhouse"
	"btc-signal-lab/internal/storage/memory"
	"btc-signal-lab/internal/storage/migrations"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config (optional)")
	pricePath := flag.String("price", "", "Price CSV (overrides config)")
	featurePath := flag.String("features", "", "Feature CSV (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN (overrides config)")
	dryRun := flag.Bool("dry-run", false, "Parse and validate only, load into memory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *pricePath != "" {
		cfg.Data.PriceCSV = *pricePath
	}
	if *featurePath != "" {
		cfg.Data.FeatureCSV = *featurePath
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickHouseDSN = *clickhouseDSN
	}

	logger, err := logging.New(logging.Config(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	logger = logging.Component(logger, "ingest")

	if !*dryRun && cfg.Storage.ClickHouseDSN == "" {
		logger.Fatal().Msg("--clickhouse-dsn is required (use --dry-run to validate files only)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	in, err := app.LoadCSV(cfg.Data.PriceCSV, cfg.Data.FeatureCSV, observability.DefaultMetrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse input")
	}
	logger.Info().
		Int("bars", len(in.Bars)).
		Int("features", len(in.Features)).
		Dur("took", time.Since(start)).
		Msg("files parsed")

	var (
		barStore     storage.DailyBarStore
		featureStore storage.FeatureStore
	)
	if *dryRun {
		barStore = memory.NewDailyBarStore()
		featureStore = memory.NewFeatureStore()
	} else {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("clickhouse migrations")
		}
		defer conn.Close()
		barStore = chstore.NewDailyBarStore(conn)
		featureStore = chstore.NewFeatureStore(conn)
	}

	bars, features, err := ingest(ctx, barStore, featureStore, in.Bars, in.Features, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingest failed")
	}
	observability.DefaultMetrics.LastSuccessfulIngestion.SetToCurrentTime()

	fmt.Printf("Ingestion completed in %s:\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Bars inserted:     %d of %d\n", bars, len(in.Bars))
	fmt.Printf("  Features inserted: %d of %d\n", features, len(in.Features))
	if *dryRun {
		fmt.Println("  (dry run, nothing written)")
	}
}

// ingest inserts the rows whose dates are not stored yet and returns how
// many of each were inserted.
func ingest(
	ctx context.Context,
	barStore storage.DailyBarStore,
	featureStore storage.FeatureStore,
	bars []*domain.DailyBar,
	features []*domain.FeatureRecord,
	logger zerolog.Logger,
) (int, int, error) {
	storedBars, err := barStore.GetAll(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load stored bars: %w", err)
	}
	newBars := unseen(bars, storedBars, func(b *domain.DailyBar) time.Time { return b.Date })
	if err := barStore.InsertBulk(ctx, newBars); err != nil {
		return 0, 0, fmt.Errorf("insert bars: %w", err)
	}
	logger.Info().Int("inserted", len(newBars)).Int("skipped", len(bars)-len(newBars)).Msg("bars stored")

	storedFeatures, err := featureStore.GetAll(ctx)
	if err != nil {
		return len(newBars), 0, fmt.Errorf("load stored features: %w", err)
	}
	newFeatures := unseen(features, storedFeatures, func(f *domain.FeatureRecord) time.Time { return f.Date })
	if err := featureStore.InsertBulk(ctx, newFeatures); err != nil {
		return len(newBars), 0, fmt.Errorf("insert features: %w", err)
	}
	logger.Info().Int("inserted", len(newFeatures)).Int("skipped", len(features)-len(newFeatures)).Msg("features stored")

	return len(newBars), len(newFeatures), nil
}

// unseen keeps the items whose day is not in stored, in input order.
func unseen[T any](items, stored []T, date func(T) time.Time) []T {
	seen := make(map[string]struct{}, len(stored))
	for _, s := range stored {
		seen[domain.DayKey(date(s))] = struct{}{}
	}
	var out []T
	for _, it := range items {
		if _, ok := seen[domain.DayKey(date(it))]; !ok {
			out = append(out, it)
		}
	}
	return out
}
