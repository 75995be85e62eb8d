package strategy

import (
	"context"
	"fmt"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/idhash"
	"btc-signal-lab/internal/lookup"
)

// Default THRESHOLD exit levels.
const (
	DefaultTakeProfit = 0.10
	DefaultStopLoss   = -0.15
)

// ThresholdExit closes a position on the first bar whose return from the
// signal close breaks either threshold.
type ThresholdExit struct {
	TakeProfit float64 // exit when return > TakeProfit
	StopLoss   float64 // exit when return < StopLoss (negative)
}

// NewThresholdExit creates a new ThresholdExit.
func NewThresholdExit(takeProfit, stopLoss float64) *ThresholdExit {
	return &ThresholdExit{
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
	}
}

// ID returns the rule identifier including parameters.
func (e *ThresholdExit) ID() string {
	return fmt.Sprintf("THRESHOLD_tp%g_sl%g", e.TakeProfit, e.StopLoss)
}

// Execute scans bars dated strictly after the signal in ascending order:
//   - return = (close - signal_price) / signal_price
//   - return > TakeProfit -> TAKE_PROFIT
//   - return < StopLoss -> STOP_LOSS
//
// The first qualifying bar wins. Both comparisons are strict.
func (e *ThresholdExit) Execute(_ context.Context, input *ExitInput) (*domain.ExitEvent, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	sig := input.Signal
	buyPrice := sig.Price
	start := lookup.FirstAfter(sig.Date, input.Prices)

	for _, bar := range input.Prices[start:] {
		ret := (bar.Close - buyPrice) / buyPrice

		var reason domain.ExitReason
		switch {
		case ret > e.TakeProfit:
			reason = domain.ExitReasonTakeProfit
		case ret < e.StopLoss:
			reason = domain.ExitReasonStopLoss
		default:
			continue
		}

		return buildExitEvent(sig, e.ID(), bar, reason, ret), nil
	}

	return nil, nil
}

// buildExitEvent constructs a complete ExitEvent.
func buildExitEvent(sig *domain.Signal, exitRuleID string, bar *domain.DailyBar, reason domain.ExitReason, ret float64) *domain.ExitEvent {
	return &domain.ExitEvent{
		ExitID:      idhash.ComputeExitID(sig.SignalID, exitRuleID),
		SignalID:    sig.SignalID,
		ExitRuleID:  exitRuleID,
		SignalDate:  sig.Date,
		SignalPrice: sig.Price,
		ExitDate:    bar.Date,
		ExitPrice:   bar.Close,
		Reason:      reason,
		Return:      ret,
		HoldDays:    holdDays(sig.Date, bar.Date),
	}
}

func holdDays(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// Ensure ThresholdExit implements ExitRule
var _ ExitRule = (*ThresholdExit)(nil)
