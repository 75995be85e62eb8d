package reporting

import "time"

// Report represents the backtest report structure.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	StrategyID  string
	ExitRuleID  string

	// Data Summary
	DataSummary DataSummary

	// Data sufficiency checks, empty when not evaluated
	Checks []CheckRow

	// Outcome metrics per filter/rule pair
	StrategyMetrics []StrategyMetricRow

	// One row per signal, resolved or not (sorted by signal date)
	Signals []SignalRow
}

// DataSummary contains data description.
type DataSummary struct {
	TotalBars      int
	JoinedRecords  int
	TotalSignals   int
	TotalExits     int
	DateRangeStart time.Time // first bar, zero if unknown
	DateRangeEnd   time.Time // last bar, zero if unknown
}

// CheckRow is one data sufficiency criterion.
type CheckRow struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// StrategyMetricRow represents one row in strategy metrics table.
type StrategyMetricRow struct {
	StrategyID           string
	ExitRuleID           string
	TotalSignals         int
	TotalExits           int
	Unresolved           int
	TakeProfits          int
	StopLosses           int
	WinRate              float64
	ReturnMean           float64
	ReturnMedian         float64
	ReturnP10            float64
	ReturnP90            float64
	MaxDrawdown          float64
	MaxConsecutiveLosses int
	MeanHoldDays         float64
}

// SignalRow pairs a signal with its exit. Exit fields are nil when the
// signal never crossed a threshold.
type SignalRow struct {
	SignalID    string
	SignalDate  time.Time
	SignalPrice float64
	ExitDate    *time.Time
	ExitPrice   *float64
	Return      *float64
	Reason      string // TAKE_PROFIT | STOP_LOSS | OPEN
	HoldDays    *int
}

// ReasonOpen marks a signal without exit.
const ReasonOpen = "OPEN"
