// Package app assembles stores, data sources and sinks from configuration
// for the commands.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"btc-signal-lab/internal/cache"
	"btc-signal-lab/internal/config"
	"btc-signal-lab/internal/ingestion"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/pipeline"
	"btc-signal-lab/internal/publish"
	"btc-signal-lab/internal/storage"
	chstore "btc-signal-lab/internal/storage/clickhouse"
	"btc-signal-lab/internal/storage/memory"
	"btc-signal-lab/internal/storage/migrations"
	pgstore "btc-signal-lab/internal/storage/postgres"
	"btc-signal-lab/internal/storage/sqlite"
)

// Stores holds every store a command may need.
type Stores struct {
	// Source series. Nil unless ClickHouse is configured.
	Bars     storage.DailyBarStore
	Features storage.FeatureStore

	// Results
	Signals    storage.SignalStore
	Exits      storage.ExitEventStore
	Aggregates storage.StrategyAggregateStore

	closers []func()
}

// Close releases all connections in reverse open order.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// OpenStores opens the result backend and, when a DSN is set, ClickHouse.
// Migrations run on open. Aggregates live in ClickHouse when available and
// in memory otherwise.
func OpenStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Stores, error) {
	s := &Stores{}
	log := logger.With().Str("component", "stores").Logger()

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		s.Signals = memory.NewSignalStore()
		s.Exits = memory.NewExitEventStore()

	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.Signals = pgstore.NewSignalStore(pool)
		s.Exits = pgstore.NewExitEventStore(pool)

	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		s.Signals = sqlite.NewSignalStore(db)
		s.Exits = sqlite.NewExitEventStore(db)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	log.Info().Str("backend", cfg.Storage.Backend).Msg("result stores opened")

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.Bars = chstore.NewDailyBarStore(conn)
		s.Features = chstore.NewFeatureStore(conn)
		s.Aggregates = chstore.NewStrategyAggregateStore(conn)
		log.Info().Msg("clickhouse stores opened")
	} else {
		s.Aggregates = memory.NewStrategyAggregateStore()
	}

	return s, nil
}

// LoadInput reads bars and features from the configured source.
func LoadInput(ctx context.Context, cfg *config.Config, stores *Stores, m *observability.Metrics) (pipeline.Input, error) {
	switch cfg.Data.Source {
	case config.SourceCSV:
		return LoadCSV(cfg.Data.PriceCSV, cfg.Data.FeatureCSV, m)

	case config.SourceClickHouse:
		if stores == nil || stores.Bars == nil || stores.Features == nil {
			return pipeline.Input{}, fmt.Errorf("clickhouse source requires storage.clickhouse_dsn")
		}
		bars, err := stores.Bars.GetAll(ctx)
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("load bars: %w", err)
		}
		features, err := stores.Features.GetAll(ctx)
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("load features: %w", err)
		}
		return pipeline.Input{Bars: bars, Features: features}, nil

	default:
		return pipeline.Input{}, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

// LoadCSV parses both CSV files. m may be nil.
func LoadCSV(pricePath, featurePath string, m *observability.Metrics) (pipeline.Input, error) {
	bars, err := ingestion.LoadPriceFile(pricePath)
	if m != nil {
		m.RecordIngestion("price", len(bars), err)
	}
	if err != nil {
		return pipeline.Input{}, err
	}

	features, err := ingestion.LoadFeatureFile(featurePath)
	if m != nil {
		m.RecordIngestion("feature", len(features), err)
	}
	if err != nil {
		return pipeline.Input{}, err
	}

	return pipeline.Input{Bars: bars, Features: features}, nil
}

// OpenPublisher returns nil when no broker is configured.
func OpenPublisher(cfg *config.Config) (*publish.Producer, error) {
	if len(cfg.Publish.KafkaBrokers) == 0 {
		return nil, nil
	}
	return publish.NewProducer(publish.ProducerConfig{
		Brokers: cfg.Publish.KafkaBrokers,
		Topic:   cfg.Publish.Topic,
	})
}

// OpenCache returns nil when no Redis address is configured.
func OpenCache(ctx context.Context, cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Cache.RedisAddr == "" {
		return nil, nil
	}
	return cache.NewRedisCache(ctx, cache.Options{
		Addr:   cfg.Cache.RedisAddr,
		Prefix: cfg.Cache.Prefix,
	})
}
