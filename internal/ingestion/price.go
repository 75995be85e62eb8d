package ingestion

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"btc-signal-lab/internal/domain"
)

// Price CSV columns.
const (
	ColDate      = "Date"
	ColPrice     = "Price"
	ColOpen      = "Open"
	ColHigh      = "High"
	ColLow       = "Low"
	ColVolume    = "Vol."
	ColChangePct = "Change %"
)

var priceColumns = []string{ColDate, ColPrice, ColOpen, ColHigh, ColLow, ColVolume, ColChangePct}

// ParsePriceCSV parses a daily price export into bars in file order.
// file is used only in error messages.
func ParsePriceCSV(r io.Reader, file string) ([]*domain.DailyBar, error) {
	t, err := newTable(r, file, priceColumns)
	if err != nil {
		return nil, err
	}

	var bars []*domain.DailyBar
	seen := make(map[string]struct{})
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		bar, err := parseBar(t, rec)
		if err != nil {
			return nil, err
		}

		key := domain.DayKey(bar.Date)
		if _, dup := seen[key]; dup {
			return nil, t.parseErr(rec, ColDate, ErrDuplicateDate)
		}
		seen[key] = struct{}{}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(t *table, rec []string) (*domain.DailyBar, error) {
	date, err := parseDate(t.cell(rec, ColDate))
	if err != nil {
		return nil, t.parseErr(rec, ColDate, err)
	}

	bar := &domain.DailyBar{Date: date}
	numeric := []struct {
		column string
		dst    *float64
	}{
		{ColPrice, &bar.Close},
		{ColOpen, &bar.Open},
		{ColHigh, &bar.High},
		{ColLow, &bar.Low},
	}
	for _, n := range numeric {
		v, err := parseNumber(t.cell(rec, n.column))
		if err != nil {
			return nil, t.parseErr(rec, n.column, err)
		}
		*n.dst = v
	}

	if bar.Volume, err = parseVolume(t.cell(rec, ColVolume)); err != nil {
		return nil, t.parseErr(rec, ColVolume, err)
	}
	if bar.ChangePct, err = parsePercent(t.cell(rec, ColChangePct)); err != nil {
		return nil, t.parseErr(rec, ColChangePct, err)
	}
	return bar, nil
}

// LoadPriceFile opens and parses a price CSV file.
func LoadPriceFile(path string) ([]*domain.DailyBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}
	defer f.Close()
	return ParsePriceCSV(f, filepath.Base(path))
}
