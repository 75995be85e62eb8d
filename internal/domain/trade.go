package domain

import "time"

// ExitEvent represents the simulated exit of a single signal.
// Corresponds to exit_events table in PostgreSQL.
type ExitEvent struct {
	ExitID     string // deterministic hash
	SignalID   string // FK to signals
	ExitRuleID string // exit rule identifier

	// Entry
	SignalDate  time.Time // buy day
	SignalPrice float64   // buy price (close)

	// Exit
	ExitDate  time.Time  // first bar crossing a threshold
	ExitPrice float64    // close on the exit day
	Reason    ExitReason // TAKE_PROFIT | STOP_LOSS

	// Outcome
	Return   float64 // (exit_price - signal_price) / signal_price
	HoldDays int     // calendar days between signal and exit
}

// Outcome class constants
const (
	OutcomeClassWin  = "WIN"
	OutcomeClassLoss = "LOSS"
)

// OutcomeClass classifies the exit by the sign of its return.
func (e *ExitEvent) OutcomeClass() string {
	if e.Return > 0 {
		return OutcomeClassWin
	}
	return OutcomeClassLoss
}
