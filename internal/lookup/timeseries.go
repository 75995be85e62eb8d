package lookup

import (
	"errors"
	"sort"
	"time"

	"btc-signal-lab/internal/domain"
)

// Errors returned by lookup functions.
var (
	ErrNoPriceData = errors.New("no price data available")
)

// FirstAfter returns the index of the first bar dated strictly after day.
// Bars must be sorted by date ASC. Returns len(bars) when none qualifies.
func FirstAfter(day time.Time, bars []*domain.DailyBar) int {
	return sort.Search(len(bars), func(i int) bool {
		return bars[i].Date.After(day)
	})
}

// IndexOf returns the index of the bar dated exactly day, or -1.
func IndexOf(day time.Time, bars []*domain.DailyBar) int {
	day = domain.Day(day)
	i := sort.Search(len(bars), func(i int) bool {
		return !bars[i].Date.Before(day)
	})
	if i < len(bars) && bars[i].Date.Equal(day) {
		return i
	}
	return -1
}

// CloseAt returns the close of the latest bar at or before day.
// If day precedes the series, the first close is returned.
// Returns ErrNoPriceData if bars is empty.
func CloseAt(day time.Time, bars []*domain.DailyBar) (float64, error) {
	if len(bars) == 0 {
		return 0, ErrNoPriceData
	}

	i := FirstAfter(day, bars)
	if i == 0 {
		return bars[0].Close, nil
	}
	return bars[i-1].Close, nil
}
