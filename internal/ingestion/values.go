package ingestion

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order when parsing a date cell.
var dateLayouts = []string{
	"01/02/2006",
	time.DateOnly,
	time.DateTime,
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05-07:00",
	"Jan 02, 2006",
	"Jan 2, 2006",
}

var volumeMultipliers = map[byte]decimal.Decimal{
	'K': decimal.NewFromInt(1_000),
	'M': decimal.NewFromInt(1_000_000),
	'B': decimal.NewFromInt(1_000_000_000),
}

// parseDate parses a date or timestamp cell and truncates it to its UTC day.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// parseDecimal parses a number that may carry thousands separators.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, ErrInvalidNumber
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidNumber
	}
	return d, nil
}

// parseNumber parses a required numeric cell.
func parseNumber(s string) (float64, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// parseOptionalNumber parses a numeric cell where empty means undefined.
func parseOptionalNumber(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	v, err := parseNumber(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// parseVolume expands K/M/B suffixed volume cells such as "337.41K".
// A bare number is taken as-is.
func parseVolume(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidVolume
	}
	last := s[len(s)-1]
	if last >= '0' && last <= '9' {
		v, err := parseNumber(s)
		if err != nil {
			return 0, ErrInvalidVolume
		}
		return v, nil
	}
	mult, ok := volumeMultipliers[upper(last)]
	if !ok {
		return 0, ErrInvalidVolume
	}
	d, err := parseDecimal(s[:len(s)-1])
	if err != nil {
		return 0, ErrInvalidVolume
	}
	return d.Mul(mult).InexactFloat64(), nil
}

// parsePercent parses "1.25%" into 1.25.
func parsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, ErrInvalidPercent
	}
	v, err := parseNumber(strings.TrimSuffix(s, "%"))
	if err != nil {
		return 0, ErrInvalidPercent
	}
	return v, nil
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
