// Package orchestrator runs the backtest pipeline for every combination of
// configured entry filters and exit rules.
// It coordinates: load → (filter × exit rule) pipeline runs → aggregates
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/pipeline"
	"btc-signal-lab/internal/storage"
	"btc-signal-lab/internal/strategy"
)

// ErrNoSource is returned by Run when no bar or feature store is configured.
var ErrNoSource = errors.New("orchestrator requires bar and feature stores")

// Orchestrator coordinates a parameter sweep.
type Orchestrator struct {
	// Source stores
	dailyBarStore storage.DailyBarStore
	featureStore  storage.FeatureStore

	// Result stores
	signalStore    storage.SignalStore
	exitEventStore storage.ExitEventStore
	aggregateStore storage.StrategyAggregateStore

	// Configs
	filterConfigs []domain.FilterConfig
	exitConfigs   []domain.ExitConfig

	workers int
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// Options for creating Orchestrator.
type Options struct {
	// Source stores, required by Run
	DailyBarStore storage.DailyBarStore
	FeatureStore  storage.FeatureStore

	// Optional result stores
	SignalStore    storage.SignalStore
	ExitEventStore storage.ExitEventStore
	AggregateStore storage.StrategyAggregateStore

	// Filter and exit rule configs, evaluated as a cross product
	FilterConfigs []domain.FilterConfig
	ExitConfigs   []domain.ExitConfig

	Workers int
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		dailyBarStore:  opts.DailyBarStore,
		featureStore:   opts.FeatureStore,
		signalStore:    opts.SignalStore,
		exitEventStore: opts.ExitEventStore,
		aggregateStore: opts.AggregateStore,
		filterConfigs:  opts.FilterConfigs,
		exitConfigs:    opts.ExitConfigs,
		workers:        opts.Workers,
		metrics:        opts.Metrics,
		logger:         opts.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	Combinations   int
	SignalsCreated int
	ExitsCreated   int
	Results        []*pipeline.Result
	Errors         []string
}

// Aggregates returns the aggregate of every successful combination.
func (r *RunResult) Aggregates() []*domain.StrategyAggregate {
	aggs := make([]*domain.StrategyAggregate, 0, len(r.Results))
	for _, res := range r.Results {
		aggs = append(aggs, res.Aggregate)
	}
	return aggs
}

// Run loads the stored series and sweeps every combination.
// Phases:
//  1. Load bars and features
//  2. Run the pipeline per (filter, exit rule) pair
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if o.dailyBarStore == nil || o.featureStore == nil {
		return nil, ErrNoSource
	}

	o.logger.Info().Msg("phase 1: loading series")
	bars, err := o.dailyBarStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load bars) failed: %w", err)
	}
	features, err := o.featureStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("phase 1 (load features) failed: %w", err)
	}
	o.logger.Info().Int("bars", len(bars)).Int("features", len(features)).Msg("series loaded")

	return o.RunInput(ctx, pipeline.Input{Bars: bars, Features: features})
}

// RunInput sweeps every combination over in. A failing combination is
// recorded in Errors and does not stop the sweep; context cancellation does.
func (o *Orchestrator) RunInput(ctx context.Context, in pipeline.Input) (*RunResult, error) {
	result := &RunResult{}

	o.logger.Info().
		Int("filters", len(o.filterConfigs)).
		Int("exit_rules", len(o.exitConfigs)).
		Msg("phase 2: running combinations")

	for _, fc := range o.filterConfigs {
		filter, err := strategy.FilterFromConfig(fc)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("filter %s: %v", fc.FilterType, err))
			continue
		}

		for _, ec := range o.exitConfigs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			rule, err := strategy.ExitFromConfig(ec)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("exit %s: %v", ec.ExitType, err))
				continue
			}
			result.Combinations++

			res, err := o.runOne(ctx, filter, rule, in)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				result.Errors = append(result.Errors, fmt.Sprintf("run %s/%s: %v", filter.ID(), rule.ID(), err))
				continue
			}

			result.Results = append(result.Results, res)
			result.SignalsCreated += len(res.Signals)
			result.ExitsCreated += len(res.Exits)
		}
	}

	o.logger.Info().
		Int("combinations", result.Combinations).
		Int("signals", result.SignalsCreated).
		Int("exits", result.ExitsCreated).
		Int("errors", len(result.Errors)).
		Msg("sweep completed")

	return result, nil
}

func (o *Orchestrator) runOne(ctx context.Context, filter strategy.EntryFilter, rule strategy.ExitRule, in pipeline.Input) (*pipeline.Result, error) {
	p, err := pipeline.New(pipeline.Options{
		Filter:         filter,
		ExitRule:       rule,
		Workers:        o.workers,
		SignalStore:    o.signalStore,
		ExitEventStore: o.exitEventStore,
		AggregateStore: o.aggregateStore,
		Metrics:        o.metrics,
		Logger:         o.logger,
	})
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, in)
}

// ExitGrid builds threshold exit configs for every (take profit, stop loss) pair.
func ExitGrid(takeProfits, stopLosses []float64) []domain.ExitConfig {
	configs := make([]domain.ExitConfig, 0, len(takeProfits)*len(stopLosses))
	for _, tp := range takeProfits {
		for _, sl := range stopLosses {
			tp, sl := tp, sl
			configs = append(configs, domain.ExitConfig{
				ExitType:   domain.ExitTypeThreshold,
				TakeProfit: &tp,
				StopLoss:   &sl,
			})
		}
	}
	return configs
}
