package verification

import (
	"context"
	"errors"
	"fmt"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/lookup"
	"btc-signal-lab/internal/storage"
	"btc-signal-lab/internal/strategy"
)

var (
	// ErrSignalNotFound is returned when the signal ID doesn't exist.
	ErrSignalNotFound = errors.New("signal not found")

	// ErrNoBars is returned when the bar store is empty.
	ErrNoBars = errors.New("no price bars stored")
)

// ReplayVerifier implements Verifier by re-running one exit rule.
type ReplayVerifier struct {
	signalStore    storage.SignalStore
	exitEventStore storage.ExitEventStore
	barStore       storage.DailyBarStore
	rule           strategy.ExitRule
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	SignalStore    storage.SignalStore
	ExitEventStore storage.ExitEventStore
	BarStore       storage.DailyBarStore
	ExitRule       strategy.ExitRule
}

var _ Verifier = (*ReplayVerifier)(nil)

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		signalStore:    opts.SignalStore,
		exitEventStore: opts.ExitEventStore,
		barStore:       opts.BarStore,
		rule:           opts.ExitRule,
	}
}

// VerifySignal verifies one signal by replaying its exit.
func (v *ReplayVerifier) VerifySignal(ctx context.Context, signalID string) (*Result, error) {
	signal, err := v.signalStore.GetByID(ctx, signalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSignalNotFound
		}
		return nil, err
	}

	bars, err := v.loadBars(ctx)
	if err != nil {
		return nil, err
	}
	return v.verify(ctx, signal, bars)
}

// VerifyAll verifies all stored signals of a filter.
func (v *ReplayVerifier) VerifyAll(ctx context.Context, strategyID string) (*Report, error) {
	signals, err := v.signalStore.GetByStrategy(ctx, strategyID)
	if err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	bars, err := v.loadBars(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		StrategyID: strategyID,
		ExitRuleID: v.rule.ID(),
		Total:      len(signals),
		Results:    make([]Result, 0, len(signals)),
	}

	for _, s := range signals {
		result, err := v.verify(ctx, s, bars)
		if err != nil {
			// Record error as divergence
			result = &Result{
				SignalID:    s.SignalID,
				Divergences: []FieldDivergence{{Field: "Error", Actual: err.Error()}},
			}
		}

		report.Results = append(report.Results, *result)
		if result.Match {
			report.Matched++
		} else {
			report.Divergent++
		}
	}

	return report, nil
}

func (v *ReplayVerifier) loadBars(ctx context.Context) ([]*domain.DailyBar, error) {
	bars, err := v.barStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	return bars, nil
}

func (v *ReplayVerifier) verify(ctx context.Context, signal *domain.Signal, bars []*domain.DailyBar) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var divergences []FieldDivergence
	if lookup.IndexOf(signal.Date, bars) < 0 {
		divergences = append(divergences, FieldDivergence{
			Field:    "SignalDate",
			Expected: domain.DayKey(signal.Date),
			Actual:   "missing bar",
		})
	} else {
		price, err := lookup.CloseAt(signal.Date, bars)
		if err != nil {
			return nil, err
		}
		divergences = append(divergences, CompareSignals(signal, price)...)
	}

	stored, err := v.exitEventStore.GetBySignalID(ctx, signal.SignalID, v.rule.ID())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load exit: %w", err)
	}

	replayed, err := v.rule.Execute(ctx, &strategy.ExitInput{Signal: signal, Prices: bars})
	if err != nil {
		return nil, fmt.Errorf("replay exit: %w", err)
	}

	divergences = append(divergences, CompareExitEvents(stored, replayed)...)
	return &Result{
		SignalID:    signal.SignalID,
		Match:       len(divergences) == 0,
		Divergences: divergences,
	}, nil
}
