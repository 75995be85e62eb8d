// Package pipeline runs a backtest as an explicit sequence of stages:
// prepare → check → filter → simulate → summarize → persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/metrics"
	"btc-signal-lab/internal/normalization"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/reporting"
	"btc-signal-lab/internal/simulation"
	"btc-signal-lab/internal/storage"
	"btc-signal-lab/internal/strategy"
)

// Stage names used in logs and metrics.
const (
	StagePrepare   = "prepare"
	StageCheck     = "check"
	StageFilter    = "filter"
	StageSimulate  = "simulate"
	StageSummarize = "summarize"
	StagePersist   = "persist"
)

// Pipeline errors
var (
	ErrNoFilter   = errors.New("pipeline requires an entry filter")
	ErrNoExitRule = errors.New("pipeline requires an exit rule")
)

// Options for creating a Pipeline.
type Options struct {
	Filter   strategy.EntryFilter
	ExitRule strategy.ExitRule
	Workers  int

	// Optional result stores. Nil stores are skipped in the persist stage.
	SignalStore    storage.SignalStore
	ExitEventStore storage.ExitEventStore
	AggregateStore storage.StrategyAggregateStore

	Metrics *observability.Metrics // optional
	Logger  zerolog.Logger
	Clock   func() time.Time
}

// Pipeline runs one entry filter and one exit rule over a data set.
type Pipeline struct {
	filter         strategy.EntryFilter
	runner         *simulation.Runner
	signalStore    storage.SignalStore
	exitEventStore storage.ExitEventStore
	aggregateStore storage.StrategyAggregateStore
	metrics        *observability.Metrics
	logger         zerolog.Logger
	clock          func() time.Time
}

// New creates a pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Filter == nil {
		return nil, ErrNoFilter
	}
	if opts.ExitRule == nil {
		return nil, ErrNoExitRule
	}

	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Pipeline{
		filter: opts.Filter,
		runner: simulation.NewRunner(simulation.RunnerOptions{
			ExitRule: opts.ExitRule,
			Workers:  opts.Workers,
		}),
		signalStore:    opts.SignalStore,
		exitEventStore: opts.ExitEventStore,
		aggregateStore: opts.AggregateStore,
		metrics:        opts.Metrics,
		logger:         opts.Logger.With().Str("component", "pipeline").Logger(),
		clock:          clock,
	}, nil
}

// Input is the raw data of a run. Slices are not modified.
type Input struct {
	Bars     []*domain.DailyBar
	Features []*domain.FeatureRecord
}

// Result holds every stage output of a run.
type Result struct {
	StrategyID  string
	ExitRuleID  string
	StartedAt   time.Time
	FinishedAt  time.Time
	Dataset     *normalization.Dataset
	Sufficiency *SufficiencyResult
	Signals     []*domain.Signal    // sorted by date ASC
	Exits       []*domain.ExitEvent // in signal order, unresolved signals omitted
	Aggregate   *domain.StrategyAggregate
}

// Run executes all stages. Persistence happens only after every pure stage
// succeeded.
func (p *Pipeline) Run(ctx context.Context, in Input) (res *Result, err error) {
	defer func() {
		if p.metrics != nil {
			p.metrics.RecordRun(err)
		}
	}()

	res = &Result{
		StrategyID: p.filter.ID(),
		ExitRuleID: p.runner.ExitRuleID(),
		StartedAt:  p.clock(),
	}
	log := p.logger.With().Str("strategy_id", res.StrategyID).Str("exit_rule_id", res.ExitRuleID).Logger()

	err = p.stage(StagePrepare, func() error {
		res.Dataset = normalization.Prepare(in.Bars, in.Features)
		log.Debug().
			Int("bars", len(res.Dataset.Bars)).
			Int("features", len(in.Features)).
			Int("joined", len(res.Dataset.Records)).
			Msg("dataset prepared")
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(StageCheck, func() error {
		res.Sufficiency = CheckSufficiency(res.Dataset)
		for _, c := range res.Sufficiency.Checks {
			if !c.Pass {
				log.Warn().Str("check", c.Name).Str("threshold", c.Threshold).Str("actual", c.Actual).Msg("data sufficiency check failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(StageFilter, func() error {
		res.Signals = p.filter.Filter(res.Dataset.Records)
		return ctx.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", StageFilter, err)
	}

	err = p.stage(StageSimulate, func() error {
		exits, err := p.runner.Run(ctx, res.Dataset.Bars, res.Signals)
		res.Exits = exits
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", StageSimulate, err)
	}

	err = p.stage(StageSummarize, func() error {
		res.Aggregate = metrics.Compute(res.StrategyID, res.ExitRuleID, len(res.Signals), res.Exits)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(StagePersist, func() error {
		return p.persist(ctx, res)
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", StagePersist, err)
	}

	res.FinishedAt = p.clock()

	if p.metrics != nil {
		byReason := make(map[string]int)
		for _, e := range res.Exits {
			byReason[e.Reason.String()]++
		}
		p.metrics.RecordResults(len(res.Signals), byReason)
	}

	log.Info().
		Int("signals", len(res.Signals)).
		Int("exits", len(res.Exits)).
		Int("unresolved", res.Aggregate.Unresolved).
		Float64("win_rate", res.Aggregate.WinRate).
		Msg("pipeline completed")

	return res, nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordStage(name, elapsed)
	}
	p.logger.Debug().Str("stage", name).Dur("elapsed", elapsed).Err(err).Msg("stage finished")
	return err
}

// persist stores signals and exits the stores do not hold yet, so repeated
// runs over a growing data set only append them, and replaces the aggregate.
func (p *Pipeline) persist(ctx context.Context, res *Result) error {
	if p.signalStore != nil {
		fresh, err := newSignals(ctx, p.signalStore, res.Signals)
		if err != nil {
			return err
		}
		if len(fresh) > 0 {
			if err := p.signalStore.InsertBulk(ctx, fresh); err != nil {
				return fmt.Errorf("insert signals: %w", err)
			}
		}
		p.logger.Debug().Int("inserted", len(fresh)).Msg("signals persisted")
	}

	if p.exitEventStore != nil {
		fresh, err := newExits(ctx, p.exitEventStore, res.Exits)
		if err != nil {
			return err
		}
		if len(fresh) > 0 {
			if err := p.exitEventStore.InsertBulk(ctx, fresh); err != nil {
				return fmt.Errorf("insert exits: %w", err)
			}
		}
		p.logger.Debug().Int("inserted", len(fresh)).Msg("exits persisted")
	}

	// The aggregate covers the whole series, so it replaces the stored one.
	if p.aggregateStore != nil {
		if err := p.aggregateStore.Upsert(ctx, res.Aggregate); err != nil {
			return fmt.Errorf("store aggregate: %w", err)
		}
	}
	return nil
}

func newSignals(ctx context.Context, store storage.SignalStore, signals []*domain.Signal) ([]*domain.Signal, error) {
	var fresh []*domain.Signal
	for _, s := range signals {
		_, err := store.GetByID(ctx, s.SignalID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fresh = append(fresh, s)
		case err != nil:
			return nil, fmt.Errorf("lookup signal %s: %w", s.SignalID, err)
		}
	}
	return fresh, nil
}

func newExits(ctx context.Context, store storage.ExitEventStore, exits []*domain.ExitEvent) ([]*domain.ExitEvent, error) {
	var fresh []*domain.ExitEvent
	for _, e := range exits {
		_, err := store.GetBySignalID(ctx, e.SignalID, e.ExitRuleID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fresh = append(fresh, e)
		case err != nil:
			return nil, fmt.Errorf("lookup exit %s: %w", e.ExitID, err)
		}
	}
	return fresh, nil
}

// BuildInput assembles the report input of a run.
func (r *Result) BuildInput() reporting.BuildInput {
	in := reporting.BuildInput{
		GeneratedAt: r.FinishedAt,
		StrategyID:  r.StrategyID,
		ExitRuleID:  r.ExitRuleID,
		Signals:     r.Signals,
		Exits:       r.Exits,
		Aggregate:   r.Aggregate,
		Checks:      r.Sufficiency.Rows(),
	}
	if r.Dataset != nil {
		in.Bars = r.Dataset.Bars
		in.Records = r.Dataset.Records
	}
	return in
}

// Report builds the report of a run.
func (r *Result) Report() *reporting.Report {
	return reporting.Build(r.BuildInput())
}

// WriteReports renders every report artifact of res into dir.
func WriteReports(dir string, res *Result) error {
	in := res.BuildInput()
	if err := reporting.WriteDir(dir, reporting.Render(reporting.Build(in), in)); err != nil {
		return err
	}
	observability.RecordReportGenerated()
	return nil
}
