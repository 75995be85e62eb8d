package normalization

import (
	"sort"

	"btc-signal-lab/internal/domain"
)

// SortBars orders bars by date ASC in place.
func SortBars(bars []*domain.DailyBar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
}

// SortedBars returns a date-ordered copy of bars. The input is not modified.
func SortedBars(bars []*domain.DailyBar) []*domain.DailyBar {
	out := make([]*domain.DailyBar, len(bars))
	copy(out, bars)
	SortBars(out)
	return out
}

// IsSorted reports whether bars are strictly ascending by date.
func IsSorted(bars []*domain.DailyBar) bool {
	for i := 1; i < len(bars); i++ {
		if !bars[i-1].Date.Before(bars[i].Date) {
			return false
		}
	}
	return true
}
