package domain

// StrategyAggregate represents aggregate outcome metrics for one
// entry filter and exit rule pair.
type StrategyAggregate struct {
	StrategyID string // entry filter identifier
	ExitRuleID string // exit rule identifier

	// Counts
	TotalSignals int
	TotalExits   int
	Unresolved   int // signals with no qualifying exit
	TakeProfits  int
	StopLosses   int
	WinRate      float64 // take profits / total exits

	// Return distribution
	ReturnMean   float64
	ReturnMedian float64
	ReturnP10    float64 // 10th percentile
	ReturnP90    float64 // 90th percentile
	ReturnMin    float64
	ReturnMax    float64
	ReturnStddev float64

	// Drawdown
	MaxDrawdown          float64 // worst peak-to-trough of cumulative returns
	MaxConsecutiveLosses int

	// Holding
	MeanHoldDays float64
	MaxHoldDays  int
}

// FilterConfig represents entry filter configuration parameters.
type FilterConfig struct {
	FilterType string // "MA_TREND"

	// MA_TREND parameters
	MinSentimentBalance *float64
	MinWhaleCount100k   *float64
	MinWhaleCount1m     *float64 // optional extra gate, nil disables it
	CompatBitwiseGate   bool
}

// ExitConfig represents exit rule configuration parameters.
type ExitConfig struct {
	ExitType string // "THRESHOLD"

	// THRESHOLD parameters
	TakeProfit *float64 // exit when return > TakeProfit
	StopLoss   *float64 // exit when return < StopLoss
}

// Filter and exit type constants
const (
	FilterTypeMATrend = "MA_TREND"
	ExitTypeThreshold = "THRESHOLD"
)
