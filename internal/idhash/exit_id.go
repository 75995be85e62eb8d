package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeExitID computes a deterministic exit_id using SHA256.
// Formula: SHA256(signal_id|exit_rule_id)
// A signal has at most one exit per rule, so the pair is unique.
func ComputeExitID(signalID, exitRuleID string) string {
	data := fmt.Sprintf("%s|%s", signalID, exitRuleID)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
