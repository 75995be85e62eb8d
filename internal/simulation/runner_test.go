package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/idhash"
	"btc-signal-lab/internal/strategy"
)

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// zigzag returns closes alternating around 100 with occasional spikes so
// signals resolve at different distances.
func zigzag(n int) []*domain.DailyBar {
	bars := make([]*domain.DailyBar, n)
	for i := range bars {
		c := 100.0 + float64(i%7)
		switch i % 11 {
		case 5:
			c = 130
		case 9:
			c = 70
		}
		bars[i] = &domain.DailyBar{Date: day(i), Close: c}
	}
	return bars
}

func signalsOn(bars []*domain.DailyBar, days ...int) []*domain.Signal {
	var out []*domain.Signal
	for _, d := range days {
		out = append(out, &domain.Signal{
			SignalID:   idhash.ComputeSignalID("trend", bars[d].Date),
			StrategyID: "trend",
			Date:       bars[d].Date,
			Price:      bars[d].Close,
		})
	}
	return out
}

func newRule() strategy.ExitRule {
	return strategy.NewThresholdExit(strategy.DefaultTakeProfit, strategy.DefaultStopLoss)
}

func TestRunner_DropsUnresolvedSignals(t *testing.T) {
	bars := []*domain.DailyBar{
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 101},
		{Date: day(2), Close: 112},
		{Date: day(3), Close: 100},
	}
	signals := signalsOn(bars, 0, 3)

	exits, err := NewRunner(RunnerOptions{ExitRule: newRule()}).Run(context.Background(), bars, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exits) != 1 {
		t.Fatalf("expected 1 exit, got %d", len(exits))
	}
	if exits[0].SignalID != signals[0].SignalID || !exits[0].ExitDate.Equal(day(2)) {
		t.Errorf("unexpected exit %+v", exits[0])
	}
}

func TestRunner_SortsUnorderedPrices(t *testing.T) {
	bars := []*domain.DailyBar{
		{Date: day(2), Close: 84},
		{Date: day(0), Close: 100},
		{Date: day(1), Close: 120},
	}
	signals := []*domain.Signal{{SignalID: "s", Date: day(0), Price: 100}}

	exits, err := NewRunner(RunnerOptions{ExitRule: newRule()}).Run(context.Background(), bars, signals)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exits) != 1 || exits[0].Reason != domain.ExitReasonTakeProfit || !exits[0].ExitDate.Equal(day(1)) {
		t.Errorf("expected TAKE_PROFIT on day 1, got %+v", exits)
	}
	if !bars[0].Date.Equal(day(2)) {
		t.Error("input prices were reordered")
	}
}

func TestRunner_EmptyInputs(t *testing.T) {
	r := NewRunner(RunnerOptions{ExitRule: newRule()})
	ctx := context.Background()

	exits, err := r.Run(ctx, nil, signalsOn(zigzag(3), 0))
	if err != nil || len(exits) != 0 {
		t.Errorf("expected no exits for empty prices, got %v, %v", exits, err)
	}
	exits, err = r.Run(ctx, zigzag(3), nil)
	if err != nil || len(exits) != 0 {
		t.Errorf("expected no exits for no signals, got %v, %v", exits, err)
	}
}

func TestRunner_NoExitRule(t *testing.T) {
	_, err := NewRunner(RunnerOptions{}).Run(context.Background(), zigzag(3), signalsOn(zigzag(3), 0))
	if !errors.Is(err, ErrNoExitRule) {
		t.Errorf("expected ErrNoExitRule, got %v", err)
	}
}

func TestRunner_ParallelMatchesSerial(t *testing.T) {
	bars := zigzag(200)
	var days []int
	for d := 0; d < 190; d += 3 {
		days = append(days, d)
	}
	signals := signalsOn(bars, days...)
	ctx := context.Background()

	serial, err := NewRunner(RunnerOptions{ExitRule: newRule()}).Run(ctx, bars, signals)
	if err != nil {
		t.Fatalf("serial run: %v", err)
	}
	parallel, err := NewRunner(RunnerOptions{ExitRule: newRule(), Workers: 8}).Run(ctx, bars, signals)
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}

	if len(serial) == 0 {
		t.Fatal("expected some exits")
	}
	if len(parallel) != len(serial) {
		t.Fatalf("expected %d exits, got %d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i].ExitID != parallel[i].ExitID || !serial[i].ExitDate.Equal(parallel[i].ExitDate) {
			t.Errorf("exit %d differs: %+v vs %+v", i, serial[i], parallel[i])
		}
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bars := zigzag(20)
	for _, workers := range []int{1, 4} {
		_, err := NewRunner(RunnerOptions{ExitRule: newRule(), Workers: workers}).Run(ctx, bars, signalsOn(bars, 0, 1, 2))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("workers=%d: expected context.Canceled, got %v", workers, err)
		}
	}
}
