package storage

import (
	"context"
	"time"

	"btc-signal-lab/internal/domain"
)

// DailyBarStore stores the daily BTC price series.
// Append-only: a date can be inserted once.
type DailyBarStore interface {
	// InsertBulk adds bars. Fails the entire batch with ErrDuplicateKey if any date exists.
	InsertBulk(ctx context.Context, bars []*domain.DailyBar) error

	// GetAll retrieves every bar, ordered by date ASC.
	GetAll(ctx context.Context) ([]*domain.DailyBar, error)

	// GetByDateRange retrieves bars within [from, to] (inclusive), ordered by date ASC.
	GetByDateRange(ctx context.Context, from, to time.Time) ([]*domain.DailyBar, error)
}

// FeatureStore stores the daily sentiment feature series.
type FeatureStore interface {
	// InsertBulk adds feature records. Fails the entire batch on any duplicate date.
	InsertBulk(ctx context.Context, records []*domain.FeatureRecord) error

	// GetAll retrieves every record, ordered by date ASC.
	GetAll(ctx context.Context) ([]*domain.FeatureRecord, error)

	// GetByDateRange retrieves records within [from, to] (inclusive), ordered by date ASC.
	GetByDateRange(ctx context.Context, from, to time.Time) ([]*domain.FeatureRecord, error)
}

// SignalStore stores detected entry signals.
type SignalStore interface {
	// InsertBulk adds signals atomically. Fails the entire batch on any duplicate signal_id.
	InsertBulk(ctx context.Context, signals []*domain.Signal) error

	// GetByID retrieves a signal. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, signalID string) (*domain.Signal, error)

	// GetByStrategy retrieves all signals of an entry filter, ordered by date ASC.
	GetByStrategy(ctx context.Context, strategyID string) ([]*domain.Signal, error)
}

// ExitEventStore stores simulated exits.
type ExitEventStore interface {
	// InsertBulk adds exits atomically. Fails the entire batch on any duplicate exit_id.
	InsertBulk(ctx context.Context, exits []*domain.ExitEvent) error

	// GetBySignalID retrieves the exit of one signal under one rule. Returns ErrNotFound if not exists.
	GetBySignalID(ctx context.Context, signalID, exitRuleID string) (*domain.ExitEvent, error)

	// GetByExitRule retrieves all exits of a rule, ordered by signal date ASC.
	GetByExitRule(ctx context.Context, exitRuleID string) ([]*domain.ExitEvent, error)
}

// StrategyAggregateStore stores per filter/rule outcome summaries.
type StrategyAggregateStore interface {
	// Insert adds an aggregate. Returns ErrDuplicateKey if (strategy_id, exit_rule_id) exists.
	Insert(ctx context.Context, agg *domain.StrategyAggregate) error

	// Upsert stores an aggregate, replacing the one with the same key.
	Upsert(ctx context.Context, agg *domain.StrategyAggregate) error

	// GetByKey retrieves an aggregate. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, strategyID, exitRuleID string) (*domain.StrategyAggregate, error)

	// GetAll retrieves every aggregate, ordered by (strategy_id, exit_rule_id).
	GetAll(ctx context.Context) ([]*domain.StrategyAggregate, error)
}
