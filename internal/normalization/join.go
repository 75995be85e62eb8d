package normalization

import (
	"btc-signal-lab/internal/domain"
)

// JoinFeatures inner-joins feature records to bars on exact calendar day.
// Bars must be sorted by date ASC and mas must be index-aligned with bars.
// Days present in only one series are dropped. Output is ordered by date ASC.
func JoinFeatures(features []*domain.FeatureRecord, bars []*domain.DailyBar, mas []domain.MovingAverages) []*domain.AnalysisRecord {
	if len(features) == 0 || len(bars) == 0 {
		return nil
	}

	byDay := make(map[string]*domain.FeatureRecord, len(features))
	for _, f := range features {
		byDay[domain.DayKey(f.Date)] = f
	}

	var result []*domain.AnalysisRecord
	for i, b := range bars {
		f, ok := byDay[domain.DayKey(b.Date)]
		if !ok {
			continue
		}
		rec := &domain.AnalysisRecord{Feature: f, Bar: b}
		if i < len(mas) {
			rec.MA = mas[i]
		}
		result = append(result, rec)
	}
	return result
}
