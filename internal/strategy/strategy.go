package strategy

import (
	"context"
	"errors"

	"btc-signal-lab/internal/domain"
)

// Input errors
var (
	ErrNilInput         = errors.New("nil exit input")
	ErrNonPositivePrice = errors.New("signal price must be positive")
)

// EntryFilter selects signal days from joined analysis records.
type EntryFilter interface {
	// Filter returns the records that qualify, in input order.
	// Records must be sorted by date ASC.
	Filter(records []*domain.AnalysisRecord) []*domain.Signal

	// ID returns filter identifier (includes parameters).
	ID() string
}

// ExitRule decides when a single signal closes.
type ExitRule interface {
	// Execute scans forward from the signal. Returns (nil, nil) when no bar
	// satisfies the rule before the series ends.
	Execute(ctx context.Context, input *ExitInput) (*domain.ExitEvent, error)

	// ID returns rule identifier (includes parameters).
	ID() string
}

// ExitInput holds all data needed for exit evaluation.
type ExitInput struct {
	Signal *domain.Signal
	Prices []*domain.DailyBar // sorted by date ASC
}

// Validate checks that the input can be evaluated.
func (in *ExitInput) Validate() error {
	if in == nil || in.Signal == nil {
		return ErrNilInput
	}
	if in.Signal.Price <= 0 {
		return ErrNonPositivePrice
	}
	return nil
}
