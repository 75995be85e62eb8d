package domain

import "time"

// Signal represents a date on which the trend filter held.
// Corresponds to signals table in PostgreSQL.
type Signal struct {
	SignalID   string    // PRIMARY KEY, deterministic hash
	StrategyID string    // entry filter identifier
	Date       time.Time // signal day, UTC midnight
	Price      float64   // close price on the signal day
}
