package normalization

import (
	"btc-signal-lab/internal/domain"
)

// ComputeMovingAverages returns the trailing close and volume means for
// every bar. Bars must be sorted by date ASC.
//
// Window N at index i averages bars [i-N+1, i] and is nil while i < N-1.
// The result is index-aligned with bars.
func ComputeMovingAverages(bars []*domain.DailyBar) []domain.MovingAverages {
	if len(bars) == 0 {
		return nil
	}

	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	result := make([]domain.MovingAverages, len(bars))
	for i := range bars {
		result[i] = domain.MovingAverages{
			MA5:  trailingMean(closes, i, domain.Window5),
			MA10: trailingMean(closes, i, domain.Window10),
			MA20: trailingMean(closes, i, domain.Window20),
			MV5:  trailingMean(volumes, i, domain.Window5),
			MV10: trailingMean(volumes, i, domain.Window10),
			MV20: trailingMean(volumes, i, domain.Window20),
		}
	}
	return result
}

// trailingMean sums the window directly rather than keeping a running sum
// so equal inputs always yield bit-identical means.
func trailingMean(values []float64, i, window int) *float64 {
	if i < window-1 {
		return nil
	}
	sum := 0.0
	for _, v := range values[i-window+1 : i+1] {
		sum += v
	}
	mean := sum / float64(window)
	return &mean
}
