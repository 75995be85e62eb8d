package metrics

import (
	"math"
	"sort"

	"btc-signal-lab/internal/domain"
)

// Compute calculates the outcome aggregate of one filter/rule pair.
// totalSignals is the number of signals fed to the simulator; exits
// without a match count as unresolved. Exits are sorted by SignalDate ASC,
// ExitID ASC before computing order-dependent metrics.
func Compute(strategyID, exitRuleID string, totalSignals int, exits []*domain.ExitEvent) *domain.StrategyAggregate {
	agg := &domain.StrategyAggregate{
		StrategyID:   strategyID,
		ExitRuleID:   exitRuleID,
		TotalSignals: totalSignals,
		Unresolved:   max(totalSignals-len(exits), 0),
	}

	n := len(exits)
	if n == 0 {
		return agg
	}

	sorted := make([]*domain.ExitEvent, n)
	copy(sorted, exits)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].SignalDate.Equal(sorted[j].SignalDate) {
			return sorted[i].SignalDate.Before(sorted[j].SignalDate)
		}
		return sorted[i].ExitID < sorted[j].ExitID
	})

	returns := make([]float64, n)
	holdSum, maxHold := 0, 0
	for i, e := range sorted {
		returns[i] = e.Return
		switch e.Reason {
		case domain.ExitReasonTakeProfit:
			agg.TakeProfits++
		case domain.ExitReasonStopLoss:
			agg.StopLosses++
		}
		holdSum += e.HoldDays
		if e.HoldDays > maxHold {
			maxHold = e.HoldDays
		}
	}

	sortedReturns := make([]float64, n)
	copy(sortedReturns, returns)
	sort.Float64s(sortedReturns)

	mean := computeMean(returns)

	agg.TotalExits = n
	agg.WinRate = computeWinRate(agg.TakeProfits, n)

	agg.ReturnMean = mean
	agg.ReturnMedian = computePercentile(sortedReturns, 0.50)
	agg.ReturnP10 = computePercentile(sortedReturns, 0.10)
	agg.ReturnP90 = computePercentile(sortedReturns, 0.90)
	agg.ReturnMin = sortedReturns[0]
	agg.ReturnMax = sortedReturns[n-1]
	agg.ReturnStddev = computeStddev(returns, mean)

	agg.MaxDrawdown = computeMaxDrawdown(returns)
	agg.MaxConsecutiveLosses = computeMaxConsecutiveLosses(returns)

	agg.MeanHoldDays = float64(holdSum) / float64(n)
	agg.MaxHoldDays = maxHold

	return agg
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeMean calculates arithmetic mean of values.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates worst peak-to-trough on the running sum of
// returns, not on compounded equity. Returns must be in chronological order.
func computeMaxDrawdown(returns []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, r := range returns {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds longest streak of return <= 0.
func computeMaxConsecutiveLosses(returns []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, r := range returns {
		if r <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
