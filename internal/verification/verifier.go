// Package verification replays the exit rule over stored signals and checks
// that the stored exits match.
package verification

import (
	"context"
	"math"

	"btc-signal-lab/internal/domain"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"` // stored value
	Actual   any    `json:"actual"`   // replayed value
}

// Result is the outcome of verifying one signal.
type Result struct {
	SignalID    string            `json:"signal_id"`
	Match       bool              `json:"match"`
	Divergences []FieldDivergence `json:"divergences,omitempty"`
}

// Report contains results for batch verification.
type Report struct {
	StrategyID string   `json:"strategy_id"`
	ExitRuleID string   `json:"exit_rule_id"`
	Total      int      `json:"total"`
	Matched    int      `json:"matched"`
	Divergent  int      `json:"divergent"`
	Results    []Result `json:"results"`
}

// Verifier checks stored results against a replay.
type Verifier interface {
	// VerifySignal replays the exit of one stored signal.
	VerifySignal(ctx context.Context, signalID string) (*Result, error)

	// VerifyAll replays every stored signal of a filter.
	VerifyAll(ctx context.Context, strategyID string) (*Report, error)
}

// CompareSignals compares a stored signal with the bar it was taken from.
func CompareSignals(stored *domain.Signal, price float64) []FieldDivergence {
	if floatEquals(stored.Price, price) {
		return nil
	}
	return []FieldDivergence{{Field: "SignalPrice", Expected: stored.Price, Actual: price}}
}

// CompareExitEvents compares two exits and returns divergences. A nil exit
// stands for an open signal.
func CompareExitEvents(stored, replayed *domain.ExitEvent) []FieldDivergence {
	switch {
	case stored == nil && replayed == nil:
		return nil
	case stored == nil:
		return []FieldDivergence{{Field: "Reason", Expected: "OPEN", Actual: replayed.Reason.String()}}
	case replayed == nil:
		return []FieldDivergence{{Field: "Reason", Expected: stored.Reason.String(), Actual: "OPEN"}}
	}

	var divergences []FieldDivergence
	add := func(field string, expected, actual any) {
		divergences = append(divergences, FieldDivergence{Field: field, Expected: expected, Actual: actual})
	}

	// Identity
	if stored.ExitID != replayed.ExitID {
		add("ExitID", stored.ExitID, replayed.ExitID)
	}
	if stored.SignalID != replayed.SignalID {
		add("SignalID", stored.SignalID, replayed.SignalID)
	}
	if stored.ExitRuleID != replayed.ExitRuleID {
		add("ExitRuleID", stored.ExitRuleID, replayed.ExitRuleID)
	}

	// Entry
	if !stored.SignalDate.Equal(replayed.SignalDate) {
		add("SignalDate", domain.DayKey(stored.SignalDate), domain.DayKey(replayed.SignalDate))
	}
	if !floatEquals(stored.SignalPrice, replayed.SignalPrice) {
		add("SignalPrice", stored.SignalPrice, replayed.SignalPrice)
	}

	// Exit
	if !stored.ExitDate.Equal(replayed.ExitDate) {
		add("ExitDate", domain.DayKey(stored.ExitDate), domain.DayKey(replayed.ExitDate))
	}
	if !floatEquals(stored.ExitPrice, replayed.ExitPrice) {
		add("ExitPrice", stored.ExitPrice, replayed.ExitPrice)
	}
	if stored.Reason != replayed.Reason {
		add("Reason", stored.Reason.String(), replayed.Reason.String())
	}

	// Outcome
	if !floatEquals(stored.Return, replayed.Return) {
		add("Return", stored.Return, replayed.Return)
	}
	if stored.HoldDays != replayed.HoldDays {
		add("HoldDays", stored.HoldDays, replayed.HoldDays)
	}

	return divergences
}

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
