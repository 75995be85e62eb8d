package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/normalization"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/reporting"
	"btc-signal-lab/internal/storage/memory"
	"btc-signal-lab/internal/strategy"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func ptr(v float64) *float64 { return &v }

// scenario returns 25 rising bars with passing features, followed by a
// bar at exitClose without features.
func scenario(exitClose float64) Input {
	var in Input
	for i := 0; i < 25; i++ {
		in.Bars = append(in.Bars, &domain.DailyBar{
			Date:   day(i),
			Close:  100 + float64(i),
			Volume: 1000 + 100*float64(i),
		})
		in.Features = append(in.Features, &domain.FeatureRecord{
			Date:             day(i),
			SentimentBalance: ptr(25),
			WhaleCount100k:   ptr(300),
		})
	}
	in.Bars = append(in.Bars, &domain.DailyBar{Date: day(25), Close: exitClose, Volume: 5000})
	return in
}

func newPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.Filter == nil {
		opts.Filter = strategy.NewTrendFilter(strategy.DefaultTrendFilterParams())
	}
	if opts.ExitRule == nil {
		opts.ExitRule = strategy.NewThresholdExit(strategy.DefaultTakeProfit, strategy.DefaultStopLoss)
	}
	opts.Logger = zerolog.Nop()
	opts.Clock = func() time.Time { return fixedNow }
	p, err := New(opts)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestNew_RequiresFilterAndRule(t *testing.T) {
	if _, err := New(Options{ExitRule: strategy.NewThresholdExit(0.1, -0.15)}); !errors.Is(err, ErrNoFilter) {
		t.Errorf("expected ErrNoFilter, got %v", err)
	}
	if _, err := New(Options{Filter: strategy.NewTrendFilter(strategy.DefaultTrendFilterParams())}); !errors.Is(err, ErrNoExitRule) {
		t.Errorf("expected ErrNoExitRule, got %v", err)
	}
}

func TestRun_TakeProfit(t *testing.T) {
	p := newPipeline(t, Options{Workers: 2})

	res, err := p.Run(context.Background(), scenario(140))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(res.Signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(res.Signals))
	}
	if len(res.Exits) != 3 {
		t.Fatalf("expected 3 exits, got %d", len(res.Exits))
	}
	for i, e := range res.Exits {
		if e.Reason != domain.ExitReasonTakeProfit {
			t.Errorf("exit %d: expected TAKE_PROFIT, got %s", i, e.Reason)
		}
		if !e.ExitDate.Equal(day(25)) {
			t.Errorf("exit %d: expected exit on day 25, got %v", i, e.ExitDate)
		}
		if e.SignalID != res.Signals[i].SignalID {
			t.Errorf("exit %d does not follow signal order", i)
		}
		if wantHold := 3 - i; e.HoldDays != wantHold {
			t.Errorf("exit %d: expected hold %d, got %d", i, wantHold, e.HoldDays)
		}
	}

	if res.Aggregate.TakeProfits != 3 || res.Aggregate.WinRate != 1 {
		t.Errorf("unexpected aggregate %+v", res.Aggregate)
	}
	if !res.FinishedAt.Equal(fixedNow) {
		t.Errorf("expected injected clock, got %v", res.FinishedAt)
	}
}

func TestRun_StopLoss(t *testing.T) {
	p := newPipeline(t, Options{})

	res, err := p.Run(context.Background(), scenario(100))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Exits) != 3 {
		t.Fatalf("expected 3 exits, got %d", len(res.Exits))
	}
	for _, e := range res.Exits {
		if e.Reason != domain.ExitReasonStopLoss {
			t.Errorf("expected STOP_LOSS, got %s", e.Reason)
		}
		if e.Return >= -0.15 {
			t.Errorf("expected return below -0.15, got %v", e.Return)
		}
	}
	if res.Aggregate.StopLosses != 3 || res.Aggregate.WinRate != 0 {
		t.Errorf("unexpected aggregate %+v", res.Aggregate)
	}
}

func TestRun_UnresolvedSignalsDropped(t *testing.T) {
	p := newPipeline(t, Options{})

	// 136 clears +10% from 122 and 123 but not from 124.
	res, err := p.Run(context.Background(), scenario(136))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(res.Signals))
	}
	if len(res.Exits) != 2 {
		t.Fatalf("expected 2 exits, got %d", len(res.Exits))
	}
	if res.Aggregate.Unresolved != 1 {
		t.Errorf("expected 1 unresolved, got %d", res.Aggregate.Unresolved)
	}

	r := res.Report()
	if r.Signals[2].Reason != reporting.ReasonOpen {
		t.Errorf("expected last signal OPEN, got %s", r.Signals[2].Reason)
	}
}

func TestRun_MatchesStagesCalledDirectly(t *testing.T) {
	in := SyntheticInput(day(0), 240)
	filter := strategy.NewTrendFilter(strategy.DefaultTrendFilterParams())
	rule := strategy.NewThresholdExit(strategy.DefaultTakeProfit, strategy.DefaultStopLoss)
	p := newPipeline(t, Options{Filter: filter, ExitRule: rule, Workers: 4})

	res, err := p.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	ds := normalization.Prepare(in.Bars, in.Features)
	signals := filter.Filter(ds.Records)
	if len(signals) != len(res.Signals) {
		t.Fatalf("expected %d signals, got %d", len(signals), len(res.Signals))
	}

	var exits int
	for _, s := range signals {
		ev, err := rule.Execute(context.Background(), &strategy.ExitInput{Signal: s, Prices: ds.Bars})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if ev != nil {
			exits++
		}
	}
	if exits != len(res.Exits) {
		t.Errorf("expected %d exits, got %d", exits, len(res.Exits))
	}
}

func TestRun_PersistIsIdempotent(t *testing.T) {
	signalStore := memory.NewSignalStore()
	exitStore := memory.NewExitEventStore()
	aggStore := memory.NewStrategyAggregateStore()
	p := newPipeline(t, Options{
		SignalStore:    signalStore,
		ExitEventStore: exitStore,
		AggregateStore: aggStore,
	})
	ctx := context.Background()

	// No threshold is crossed yet: three open signals.
	first, err := p.Run(ctx, scenario(120))
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.Exits) != 0 {
		t.Fatalf("expected no exits on first run, got %d", len(first.Exits))
	}

	// The series grows by a bar that closes all three.
	longer := scenario(120)
	longer.Bars = append(longer.Bars, &domain.DailyBar{Date: day(26), Close: 200, Volume: 5000})
	second, err := p.Run(ctx, longer)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if _, err := p.Run(ctx, longer); err != nil {
		t.Fatalf("repeated run: %v", err)
	}

	stored, err := signalStore.GetByStrategy(ctx, first.StrategyID)
	if err != nil {
		t.Fatalf("load signals: %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("expected 3 stored signals, got %d", len(stored))
	}

	exits, err := exitStore.GetByExitRule(ctx, first.ExitRuleID)
	if err != nil {
		t.Fatalf("load exits: %v", err)
	}
	if len(exits) != 3 {
		t.Errorf("expected 3 stored exits, got %d", len(exits))
	}

	agg, err := aggStore.GetByKey(ctx, first.StrategyID, first.ExitRuleID)
	if err != nil {
		t.Fatalf("expected stored aggregate: %v", err)
	}
	if *agg != *second.Aggregate {
		t.Errorf("stored aggregate %+v, want latest run %+v", agg, second.Aggregate)
	}
	if agg.TotalExits != 3 || agg.Unresolved != 0 || agg.TakeProfits != 3 {
		t.Errorf("stored aggregate is stale: exits=%d unresolved=%d tp=%d",
			agg.TotalExits, agg.Unresolved, agg.TakeProfits)
	}
}

func TestRun_Cancelled(t *testing.T) {
	p := newPipeline(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Run(ctx, scenario(140)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	p := newPipeline(t, Options{})

	res, err := p.Run(context.Background(), Input{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(res.Signals) != 0 || len(res.Exits) != 0 {
		t.Errorf("expected empty result, got %d signals %d exits", len(res.Signals), len(res.Exits))
	}
	if res.Sufficiency.AllPass {
		t.Error("expected sufficiency failures for empty input")
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newPipeline(t, Options{Metrics: observability.NewMetricsWith(reg, "test")})

	if _, err := p.Run(context.Background(), scenario(136)); err != nil {
		t.Fatalf("run: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"test_pipeline_runs_total",
		"test_pipeline_signals_total",
		"test_pipeline_exits_total",
		"test_pipeline_unresolved_signals_total",
		"test_pipeline_stage_duration_seconds",
	} {
		if !found[name] {
			t.Errorf("metric %s not recorded", name)
		}
	}
}

func TestWriteReports(t *testing.T) {
	p := newPipeline(t, Options{})
	res, err := p.Run(context.Background(), scenario(140))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	dir := t.TempDir()
	if err := WriteReports(dir, res); err != nil {
		t.Fatalf("write reports: %v", err)
	}
	for _, name := range []string{
		reporting.FileReport, reporting.FileMetrics, reporting.FileSignals,
		reporting.FileExits, reporting.FileAnalysis, reporting.FileMarkers,
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestCheckSufficiency(t *testing.T) {
	in := scenario(140)
	// Drop day 10 to create a gap.
	in.Bars = append(in.Bars[:10:10], in.Bars[11:]...)

	res := CheckSufficiency(normalization.Prepare(in.Bars, in.Features))

	byName := map[string]SufficiencyCheck{}
	for _, c := range res.Checks {
		byName[c.Name] = c
	}
	if c := byName["Price bars"]; !c.Pass || c.Actual != "25" {
		t.Errorf("unexpected price bars check %+v", c)
	}
	if c := byName["Missing price days"]; c.Pass || c.Actual != "1" {
		t.Errorf("unexpected continuity check %+v", c)
	}
	if c := byName["Gate feature coverage"]; !c.Pass {
		t.Errorf("unexpected coverage check %+v", c)
	}
	if res.AllPass {
		t.Error("expected AllPass false")
	}
	if rows := res.Rows(); len(rows) != len(res.Checks) {
		t.Errorf("expected %d rows, got %d", len(res.Checks), len(rows))
	}
}

func TestSyntheticInput_Deterministic(t *testing.T) {
	a := SyntheticInput(day(0), 60)
	b := SyntheticInput(day(0), 60)
	if len(a.Bars) != 60 || len(a.Features) != 60 {
		t.Fatalf("unexpected sizes %d/%d", len(a.Bars), len(a.Features))
	}
	for i := range a.Bars {
		if a.Bars[i].Close != b.Bars[i].Close || *a.Features[i].SentimentBalance != *b.Features[i].SentimentBalance {
			t.Fatalf("row %d differs", i)
		}
	}
}
