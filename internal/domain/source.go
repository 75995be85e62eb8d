package domain

// ExitReason names the threshold that closed a position.
type ExitReason string

const (
	ExitReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ExitReasonStopLoss   ExitReason = "STOP_LOSS"
)

// String returns the string representation of ExitReason.
func (r ExitReason) String() string {
	return string(r)
}

// IsValid checks if the reason is a valid value.
func (r ExitReason) IsValid() bool {
	return r == ExitReasonTakeProfit || r == ExitReasonStopLoss
}
