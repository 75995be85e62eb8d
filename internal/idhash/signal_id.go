package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ComputeSignalID computes a deterministic signal_id using SHA256.
// Formula: SHA256(strategy_id|YYYY-MM-DD)
// Returns hex-encoded hash (64 characters).
func ComputeSignalID(strategyID string, date time.Time) string {
	data := fmt.Sprintf("%s|%s",
		strategyID,
		date.UTC().Format(time.DateOnly),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
