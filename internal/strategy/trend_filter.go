package strategy

import (
	"fmt"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/idhash"
)

// trendLookback is the number of prior joined records each window must
// ascend through.
const trendLookback = 3

// Default MA_TREND thresholds.
const (
	DefaultMinSentimentBalance = 20.0
	DefaultMinWhaleCount100k   = 250.0
)

// TrendFilterParams holds the thresholds of the MA_TREND filter.
type TrendFilterParams struct {
	MinSentimentBalance float64
	MinWhaleCount100k   float64
	MinWhaleCount1m     *float64

	// CompatBitwiseGate evaluates the sentiment gate as
	// sentiment >= (int(MinSentimentBalance) & int(whaleOK)),
	// the expression older backtests were produced with.
	CompatBitwiseGate bool
}

// DefaultTrendFilterParams returns the standard thresholds.
func DefaultTrendFilterParams() TrendFilterParams {
	return TrendFilterParams{
		MinSentimentBalance: DefaultMinSentimentBalance,
		MinWhaleCount100k:   DefaultMinWhaleCount100k,
	}
}

// TrendFilter signals when every moving-average window has risen over the
// last four joined records, volume beats its averages and sentiment agrees.
type TrendFilter struct {
	Params TrendFilterParams
}

// NewTrendFilter creates a new TrendFilter.
func NewTrendFilter(params TrendFilterParams) *TrendFilter {
	return &TrendFilter{Params: params}
}

// ID returns the filter identifier including parameters.
func (f *TrendFilter) ID() string {
	id := fmt.Sprintf("MA_TREND_5_10_20_sent%g_whale%g",
		f.Params.MinSentimentBalance,
		f.Params.MinWhaleCount100k)
	if f.Params.MinWhaleCount1m != nil {
		id += fmt.Sprintf("_whale1m%g", *f.Params.MinWhaleCount1m)
	}
	if f.Params.CompatBitwiseGate {
		id += "_compat"
	}
	return id
}

// Filter returns a signal for every record at position i >= 3 where:
//   - MA5, MA10 and MA20 are strictly increasing over positions i-3..i
//   - volume exceeds MV5, MV10 and MV20
//   - the sentiment gate holds
//
// Records with an undefined average or feature are skipped.
func (f *TrendFilter) Filter(records []*domain.AnalysisRecord) []*domain.Signal {
	var result []*domain.Signal
	strategyID := f.ID()

	for i := trendLookback; i < len(records); i++ {
		if !f.matches(records[i-trendLookback : i+1]) {
			continue
		}
		rec := records[i]
		result = append(result, &domain.Signal{
			SignalID:   idhash.ComputeSignalID(strategyID, rec.Date()),
			StrategyID: strategyID,
			Date:       rec.Date(),
			Price:      rec.Bar.Close,
		})
	}

	return result
}

// matches evaluates the last record of window against its predecessors.
func (f *TrendFilter) matches(window []*domain.AnalysisRecord) bool {
	for _, w := range domain.Windows {
		if !ascending(window, w) {
			return false
		}
	}

	cur := window[len(window)-1]
	if !volumeAboveAverages(cur) {
		return false
	}
	return f.sentimentGate(cur.Feature)
}

func (f *TrendFilter) sentimentGate(fr *domain.FeatureRecord) bool {
	if fr == nil || fr.SentimentBalance == nil {
		return false
	}
	sentiment := *fr.SentimentBalance
	whaleOK := fr.WhaleCount100k != nil && *fr.WhaleCount100k >= f.Params.MinWhaleCount100k

	if f.Params.MinWhaleCount1m != nil {
		if fr.WhaleCount1m == nil || *fr.WhaleCount1m < *f.Params.MinWhaleCount1m {
			return false
		}
	}

	if f.Params.CompatBitwiseGate {
		var bit int64
		if whaleOK {
			bit = 1
		}
		return sentiment >= float64(int64(f.Params.MinSentimentBalance)&bit)
	}

	return sentiment >= f.Params.MinSentimentBalance && whaleOK
}

// ascending reports whether the price MA of window w strictly increases
// across records.
func ascending(records []*domain.AnalysisRecord, w int) bool {
	var prev *float64
	for _, r := range records {
		cur := r.MA.PriceMA(w)
		if cur == nil {
			return false
		}
		if prev != nil && !(*prev < *cur) {
			return false
		}
		prev = cur
	}
	return true
}

func volumeAboveAverages(r *domain.AnalysisRecord) bool {
	for _, w := range domain.Windows {
		mv := r.MA.VolumeMA(w)
		if mv == nil || !(r.Bar.Volume > *mv) {
			return false
		}
	}
	return true
}

// Ensure TrendFilter implements EntryFilter
var _ EntryFilter = (*TrendFilter)(nil)
