package ingestion

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"btc-signal-lab/internal/domain"
)

// Feature CSV columns. Other columns in the file are ignored.
const (
	ColFeatureDate           = "dt"
	ColSentimentBalance      = "sentiment_balance"
	ColUniqueSocialVolume1h  = "unique_social_volume_1h"
	ColMinersToExchangesFlow = "miners_to_exchanges_flow"
	ColWhaleCount100k        = "whale_transaction_count_more_than_100k_usd_5min"
	ColWhaleCount1m          = "whale_transaction_count_more_than_1m_usd_5min"
)

var featureColumns = []string{
	ColFeatureDate,
	ColSentimentBalance,
	ColUniqueSocialVolume1h,
	ColMinersToExchangesFlow,
	ColWhaleCount100k,
	ColWhaleCount1m,
}

// ParseFeatureCSV parses the sentiment feature export in file order.
// Empty feature cells become nil values.
func ParseFeatureCSV(r io.Reader, file string) ([]*domain.FeatureRecord, error) {
	t, err := newTable(r, file, featureColumns)
	if err != nil {
		return nil, err
	}

	var records []*domain.FeatureRecord
	seen := make(map[string]struct{})
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		date, err := parseDate(t.cell(rec, ColFeatureDate))
		if err != nil {
			return nil, t.parseErr(rec, ColFeatureDate, err)
		}
		key := domain.DayKey(date)
		if _, dup := seen[key]; dup {
			return nil, t.parseErr(rec, ColFeatureDate, ErrDuplicateDate)
		}
		seen[key] = struct{}{}

		fr := &domain.FeatureRecord{Date: date}
		optional := []struct {
			column string
			dst    **float64
		}{
			{ColSentimentBalance, &fr.SentimentBalance},
			{ColUniqueSocialVolume1h, &fr.UniqueSocialVolume1h},
			{ColMinersToExchangesFlow, &fr.MinersToExchangesFlow},
			{ColWhaleCount100k, &fr.WhaleCount100k},
			{ColWhaleCount1m, &fr.WhaleCount1m},
		}
		for _, o := range optional {
			v, err := parseOptionalNumber(t.cell(rec, o.column))
			if err != nil {
				return nil, t.parseErr(rec, o.column, err)
			}
			*o.dst = v
		}
		records = append(records, fr)
	}
	return records, nil
}

// LoadFeatureFile opens and parses a feature CSV file.
func LoadFeatureFile(path string) ([]*domain.FeatureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feature file: %w", err)
	}
	defer f.Close()
	return ParseFeatureCSV(f, filepath.Base(path))
}
