package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/pipeline"
	"btc-signal-lab/internal/storage/memory"
)

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func ptr(v float64) *float64 { return &v }

func defaultFilter() domain.FilterConfig {
	return domain.FilterConfig{
		FilterType:          domain.FilterTypeMATrend,
		MinSentimentBalance: ptr(20),
		MinWhaleCount100k:   ptr(250),
	}
}

// risingInput: 25 rising days with passing features, then day 25 at exitClose.
func risingInput(exitClose float64) pipeline.Input {
	var in pipeline.Input
	for i := 0; i < 25; i++ {
		in.Bars = append(in.Bars, &domain.DailyBar{Date: day(i), Close: 100 + float64(i), Volume: 1000 + 100*float64(i)})
		in.Features = append(in.Features, &domain.FeatureRecord{Date: day(i), SentimentBalance: ptr(30), WhaleCount100k: ptr(400)})
	}
	in.Bars = append(in.Bars, &domain.DailyBar{Date: day(25), Close: exitClose, Volume: 1})
	return in
}

func TestOrchestrator_Run_NoSource(t *testing.T) {
	o := New(Options{Logger: zerolog.Nop()})
	if _, err := o.Run(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestOrchestrator_Run_EmptyStores(t *testing.T) {
	o := New(Options{
		DailyBarStore: memory.NewDailyBarStore(),
		FeatureStore:  memory.NewFeatureStore(),
		FilterConfigs: []domain.FilterConfig{defaultFilter()},
		ExitConfigs:   ExitGrid([]float64{0.1}, []float64{-0.15}),
		Logger:        zerolog.Nop(),
	})

	result, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.Combinations != 1 {
		t.Errorf("expected 1 combination, got %d", result.Combinations)
	}
	if result.SignalsCreated != 0 || result.ExitsCreated != 0 {
		t.Errorf("expected nothing created, got %d signals %d exits", result.SignalsCreated, result.ExitsCreated)
	}
}

func TestOrchestrator_Run_Sweep(t *testing.T) {
	ctx := context.Background()
	in := risingInput(136)

	barStore := memory.NewDailyBarStore()
	featureStore := memory.NewFeatureStore()
	if err := barStore.InsertBulk(ctx, in.Bars); err != nil {
		t.Fatalf("insert bars: %v", err)
	}
	if err := featureStore.InsertBulk(ctx, in.Features); err != nil {
		t.Fatalf("insert features: %v", err)
	}
	signalStore := memory.NewSignalStore()
	exitStore := memory.NewExitEventStore()
	aggStore := memory.NewStrategyAggregateStore()

	o := New(Options{
		DailyBarStore:  barStore,
		FeatureStore:   featureStore,
		SignalStore:    signalStore,
		ExitEventStore: exitStore,
		AggregateStore: aggStore,
		FilterConfigs:  []domain.FilterConfig{defaultFilter()},
		ExitConfigs:    ExitGrid([]float64{0.05, 0.10, 0.20}, []float64{-0.15}),
		Workers:        2,
		Logger:         zerolog.Nop(),
	})

	result, err := o.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Combinations != 3 {
		t.Fatalf("expected 3 combinations, got %d", result.Combinations)
	}

	// 136 is +11.5%, +10.6% and +9.7% from the three signal closes.
	wantExits := []int{3, 2, 0}
	for i, res := range result.Results {
		if len(res.Signals) != 3 {
			t.Errorf("combination %d: expected 3 signals, got %d", i, len(res.Signals))
		}
		if len(res.Exits) != wantExits[i] {
			t.Errorf("combination %d: expected %d exits, got %d", i, wantExits[i], len(res.Exits))
		}
	}
	if result.SignalsCreated != 9 || result.ExitsCreated != 5 {
		t.Errorf("unexpected totals %d/%d", result.SignalsCreated, result.ExitsCreated)
	}

	aggs, err := aggStore.GetAll(ctx)
	if err != nil {
		t.Fatalf("load aggregates: %v", err)
	}
	if len(aggs) != 3 {
		t.Errorf("expected 3 stored aggregates, got %d", len(aggs))
	}
	if got := len(result.Aggregates()); got != 3 {
		t.Errorf("expected 3 aggregates, got %d", got)
	}

	signals, err := signalStore.GetByStrategy(ctx, result.Results[0].StrategyID)
	if err != nil {
		t.Fatalf("load signals: %v", err)
	}
	if len(signals) != 3 {
		t.Errorf("signals shared across exit rules should be stored once, got %d", len(signals))
	}
}

func TestOrchestrator_InvalidConfigsRecorded(t *testing.T) {
	o := New(Options{
		FilterConfigs: []domain.FilterConfig{defaultFilter(), {FilterType: "UNKNOWN"}},
		ExitConfigs:   ExitGrid([]float64{-0.2}, []float64{-0.1}),
		Logger:        zerolog.Nop(),
	})

	result, err := o.RunInput(context.Background(), risingInput(136))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Combinations != 0 {
		t.Errorf("expected no valid combinations, got %d", result.Combinations)
	}
	if len(result.Errors) != 2 {
		t.Errorf("expected 2 errors, got %v", result.Errors)
	}
}

func TestOrchestrator_Cancelled(t *testing.T) {
	o := New(Options{
		FilterConfigs: []domain.FilterConfig{defaultFilter()},
		ExitConfigs:   ExitGrid([]float64{0.1}, []float64{-0.15}),
		Logger:        zerolog.Nop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.RunInput(ctx, risingInput(136)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExitGrid(t *testing.T) {
	grid := ExitGrid([]float64{0.1, 0.2}, []float64{-0.1, -0.15, -0.2})
	if len(grid) != 6 {
		t.Fatalf("expected 6 configs, got %d", len(grid))
	}
	if *grid[0].TakeProfit != 0.1 || *grid[0].StopLoss != -0.1 {
		t.Errorf("unexpected first config tp=%v sl=%v", *grid[0].TakeProfit, *grid[0].StopLoss)
	}
	if *grid[5].TakeProfit != 0.2 || *grid[5].StopLoss != -0.2 {
		t.Errorf("unexpected last config tp=%v sl=%v", *grid[5].TakeProfit, *grid[5].StopLoss)
	}
}
