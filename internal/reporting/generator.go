package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/metrics"
	"btc-signal-lab/internal/storage"
)

// Generator produces reports from stored signals and exits.
type Generator struct {
	signalStore    storage.SignalStore
	exitEventStore storage.ExitEventStore
	aggregateStore storage.StrategyAggregateStore
	barStore       storage.DailyBarStore // optional, fills date range and markers
	now            func() time.Time      // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. aggStore may be nil, in which
// case metrics are recomputed from the stored exits.
func NewGenerator(
	signalStore storage.SignalStore,
	exitStore storage.ExitEventStore,
	aggStore storage.StrategyAggregateStore,
) *Generator {
	return &Generator{
		signalStore:    signalStore,
		exitEventStore: exitStore,
		aggregateStore: aggStore,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithBarStore adds the price series to generated reports.
func (g *Generator) WithBarStore(bars storage.DailyBarStore) *Generator {
	g.barStore = bars
	return g
}

// Generate produces a report for one filter/rule pair.
func (g *Generator) Generate(ctx context.Context, strategyID, exitRuleID string) (*Report, error) {
	in, err := g.GenerateInput(ctx, strategyID, exitRuleID)
	if err != nil {
		return nil, err
	}
	return Build(in), nil
}

// GenerateInput loads everything a report of one filter/rule pair is built from.
func (g *Generator) GenerateInput(ctx context.Context, strategyID, exitRuleID string) (BuildInput, error) {
	signals, err := g.signalStore.GetByStrategy(ctx, strategyID)
	if err != nil {
		return BuildInput{}, fmt.Errorf("load signals: %w", err)
	}

	exits, err := g.exitEventStore.GetByExitRule(ctx, exitRuleID)
	if err != nil {
		return BuildInput{}, fmt.Errorf("load exits: %w", err)
	}
	exits = exitsForSignals(signals, exits)

	agg, err := g.loadAggregate(ctx, strategyID, exitRuleID, signals, exits)
	if err != nil {
		return BuildInput{}, err
	}

	in := BuildInput{
		GeneratedAt: g.now(),
		StrategyID:  strategyID,
		ExitRuleID:  exitRuleID,
		Signals:     signals,
		Exits:       exits,
		Aggregate:   agg,
	}
	if g.barStore != nil {
		if in.Bars, err = g.barStore.GetAll(ctx); err != nil {
			return BuildInput{}, fmt.Errorf("load bars: %w", err)
		}
	}
	return in, nil
}

func (g *Generator) loadAggregate(ctx context.Context, strategyID, exitRuleID string, signals []*domain.Signal, exits []*domain.ExitEvent) (*domain.StrategyAggregate, error) {
	if g.aggregateStore != nil {
		agg, err := g.aggregateStore.GetByKey(ctx, strategyID, exitRuleID)
		if err == nil {
			return agg, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load aggregate: %w", err)
		}
	}
	return metrics.Compute(strategyID, exitRuleID, len(signals), exits), nil
}

// BuildInput holds everything a report is built from.
type BuildInput struct {
	GeneratedAt time.Time
	StrategyID  string
	ExitRuleID  string
	Bars        []*domain.DailyBar // optional, sorted by date ASC
	Records     []*domain.AnalysisRecord
	Signals     []*domain.Signal
	Exits       []*domain.ExitEvent
	Aggregate   *domain.StrategyAggregate
	Checks      []CheckRow
}

// Build assembles a report. Exits are matched to signals by signal_id.
func Build(in BuildInput) *Report {
	r := &Report{
		GeneratedAt: in.GeneratedAt,
		StrategyID:  in.StrategyID,
		ExitRuleID:  in.ExitRuleID,
		DataSummary: DataSummary{
			TotalBars:     len(in.Bars),
			JoinedRecords: len(in.Records),
			TotalSignals:  len(in.Signals),
			TotalExits:    len(in.Exits),
		},
		Checks:  in.Checks,
		Signals: buildSignalRows(in.Signals, in.Exits),
	}

	if len(in.Bars) > 0 {
		r.DataSummary.DateRangeStart = in.Bars[0].Date
		r.DataSummary.DateRangeEnd = in.Bars[len(in.Bars)-1].Date
	}

	if in.Aggregate != nil {
		r.StrategyMetrics = []StrategyMetricRow{metricRow(in.Aggregate)}
	}

	return r
}

func metricRow(agg *domain.StrategyAggregate) StrategyMetricRow {
	return StrategyMetricRow{
		StrategyID:           agg.StrategyID,
		ExitRuleID:           agg.ExitRuleID,
		TotalSignals:         agg.TotalSignals,
		TotalExits:           agg.TotalExits,
		Unresolved:           agg.Unresolved,
		TakeProfits:          agg.TakeProfits,
		StopLosses:           agg.StopLosses,
		WinRate:              agg.WinRate,
		ReturnMean:           agg.ReturnMean,
		ReturnMedian:         agg.ReturnMedian,
		ReturnP10:            agg.ReturnP10,
		ReturnP90:            agg.ReturnP90,
		MaxDrawdown:          agg.MaxDrawdown,
		MaxConsecutiveLosses: agg.MaxConsecutiveLosses,
		MeanHoldDays:         agg.MeanHoldDays,
	}
}

// MetricRows converts aggregates into sorted metric rows.
func MetricRows(aggs []*domain.StrategyAggregate) []StrategyMetricRow {
	rows := make([]StrategyMetricRow, len(aggs))
	for i, agg := range aggs {
		rows[i] = metricRow(agg)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StrategyID != rows[j].StrategyID {
			return rows[i].StrategyID < rows[j].StrategyID
		}
		return rows[i].ExitRuleID < rows[j].ExitRuleID
	})
	return rows
}

func buildSignalRows(signals []*domain.Signal, exits []*domain.ExitEvent) []SignalRow {
	bySignal := make(map[string]*domain.ExitEvent, len(exits))
	for _, e := range exits {
		bySignal[e.SignalID] = e
	}

	rows := make([]SignalRow, len(signals))
	for i, s := range signals {
		row := SignalRow{
			SignalID:    s.SignalID,
			SignalDate:  s.Date,
			SignalPrice: s.Price,
			Reason:      ReasonOpen,
		}
		if e, ok := bySignal[s.SignalID]; ok {
			exitDate, exitPrice, ret, hold := e.ExitDate, e.ExitPrice, e.Return, e.HoldDays
			row.ExitDate = &exitDate
			row.ExitPrice = &exitPrice
			row.Return = &ret
			row.HoldDays = &hold
			row.Reason = e.Reason.String()
		}
		rows[i] = row
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SignalDate.Before(rows[j].SignalDate)
	})
	return rows
}

// exitsForSignals keeps exits whose signal is in signals.
func exitsForSignals(signals []*domain.Signal, exits []*domain.ExitEvent) []*domain.ExitEvent {
	known := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		known[s.SignalID] = struct{}{}
	}
	var out []*domain.ExitEvent
	for _, e := range exits {
		if _, ok := known[e.SignalID]; ok {
			out = append(out, e)
		}
	}
	return out
}
