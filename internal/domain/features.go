package domain

import "time"

// FeatureRecord represents one day of on-chain and social sentiment features.
// Corresponds to daily_features table in ClickHouse.
// A nil value means the source cell was empty.
type FeatureRecord struct {
	Date                  time.Time // calendar day, UTC midnight
	SentimentBalance      *float64  // positive minus negative social mentions
	UniqueSocialVolume1h  *float64  // unique social mentions, 1h buckets
	MinersToExchangesFlow *float64  // miner outflow to exchanges
	WhaleCount100k        *float64  // transfers above 100k USD, 5min buckets
	WhaleCount1m          *float64  // transfers above 1M USD, 5min buckets
}

// AnalysisRecord is a feature record joined with the price bar and
// moving averages of the same date.
type AnalysisRecord struct {
	Feature *FeatureRecord
	Bar     *DailyBar
	MA      MovingAverages
}

// Date returns the joined calendar day.
func (r *AnalysisRecord) Date() time.Time {
	return r.Bar.Date
}
