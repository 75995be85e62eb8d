package domain

import "time"

// DailyBar represents one trading day of the BTC price series.
// Corresponds to daily_bars table in ClickHouse.
type DailyBar struct {
	Date      time.Time // calendar day, UTC midnight
	Open      float64   // opening price
	High      float64   // session high
	Low       float64   // session low
	Close     float64   // closing price ("Price" column)
	Volume    float64   // traded volume, suffixes already expanded
	ChangePct float64   // daily change in percent, informational only
}

// MovingAverages holds trailing means of close price (MA) and volume (MV).
// A nil field means the window is not yet filled.
type MovingAverages struct {
	MA5  *float64
	MA10 *float64
	MA20 *float64
	MV5  *float64
	MV10 *float64
	MV20 *float64
}

// Supported moving-average windows, in bars.
const (
	Window5  = 5
	Window10 = 10
	Window20 = 20
)

// Windows lists the moving-average windows in ascending order.
var Windows = []int{Window5, Window10, Window20}

// PriceMA returns the close-price moving average for window.
func (m MovingAverages) PriceMA(window int) *float64 {
	switch window {
	case Window5:
		return m.MA5
	case Window10:
		return m.MA10
	case Window20:
		return m.MA20
	}
	return nil
}

// VolumeMA returns the volume moving average for window.
func (m MovingAverages) VolumeMA(window int) *float64 {
	switch window {
	case Window5:
		return m.MV5
	case Window10:
		return m.MV10
	case Window20:
		return m.MV20
	}
	return nil
}

// Complete reports whether every window is defined.
func (m MovingAverages) Complete() bool {
	return m.MA5 != nil && m.MA10 != nil && m.MA20 != nil &&
		m.MV5 != nil && m.MV10 != nil && m.MV20 != nil
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayKey formats the calendar day of t as YYYY-MM-DD.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
