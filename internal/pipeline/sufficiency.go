package pipeline

import (
	"fmt"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/normalization"
	"btc-signal-lab/internal/reporting"
)

// Minimum data required for the trend filter to be able to fire.
const (
	MinPriceBars     = domain.Window20
	MinJoinedRecords = 4
)

// SufficiencyCheck represents one data sufficiency criterion.
type SufficiencyCheck struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// SufficiencyResult contains all checks.
type SufficiencyResult struct {
	Checks  []SufficiencyCheck
	AllPass bool
}

// CheckSufficiency evaluates whether ds can produce signals. The checks
// are advisory: a failing check does not stop a run.
func CheckSufficiency(ds *normalization.Dataset) *SufficiencyResult {
	result := &SufficiencyResult{AllPass: true}

	for _, check := range []SufficiencyCheck{
		checkPriceBars(ds.Bars),
		checkPriceContinuity(ds.Bars),
		checkJoinedRecords(ds.Records),
		checkCompleteAverages(ds.Records),
		checkGateFeatures(ds.Records),
	} {
		result.Checks = append(result.Checks, check)
		if !check.Pass {
			result.AllPass = false
		}
	}
	return result
}

// Rows converts the checks for the report.
func (r *SufficiencyResult) Rows() []reporting.CheckRow {
	if r == nil {
		return nil
	}
	rows := make([]reporting.CheckRow, len(r.Checks))
	for i, c := range r.Checks {
		rows[i] = reporting.CheckRow{Name: c.Name, Threshold: c.Threshold, Actual: c.Actual, Pass: c.Pass}
	}
	return rows
}

// checkPriceBars: the longest moving average needs MinPriceBars bars.
func checkPriceBars(bars []*domain.DailyBar) SufficiencyCheck {
	return SufficiencyCheck{
		Name:      "Price bars",
		Threshold: fmt.Sprintf(">= %d", MinPriceBars),
		Actual:    fmt.Sprintf("%d", len(bars)),
		Pass:      len(bars) >= MinPriceBars,
	}
}

// checkPriceContinuity: no calendar day missing between first and last bar.
func checkPriceContinuity(bars []*domain.DailyBar) SufficiencyCheck {
	check := SufficiencyCheck{
		Name:      "Missing price days",
		Threshold: "== 0",
		Actual:    "0",
		Pass:      true,
	}
	if len(bars) < 2 {
		return check
	}

	first := domain.Day(bars[0].Date)
	last := domain.Day(bars[len(bars)-1].Date)
	span := int(last.Sub(first)/(24*time.Hour)) + 1
	missing := span - len(bars)
	if missing < 0 {
		missing = 0
	}

	check.Actual = fmt.Sprintf("%d", missing)
	check.Pass = missing == 0
	return check
}

// checkJoinedRecords: the trend window spans MinJoinedRecords records.
func checkJoinedRecords(records []*domain.AnalysisRecord) SufficiencyCheck {
	return SufficiencyCheck{
		Name:      "Joined records",
		Threshold: fmt.Sprintf(">= %d", MinJoinedRecords),
		Actual:    fmt.Sprintf("%d", len(records)),
		Pass:      len(records) >= MinJoinedRecords,
	}
}

func checkCompleteAverages(records []*domain.AnalysisRecord) SufficiencyCheck {
	count := 0
	for _, rec := range records {
		if rec.MA.Complete() {
			count++
		}
	}
	return SufficiencyCheck{
		Name:      "Records with all moving averages",
		Threshold: fmt.Sprintf(">= %d", MinJoinedRecords),
		Actual:    fmt.Sprintf("%d", count),
		Pass:      count >= MinJoinedRecords,
	}
}

// checkGateFeatures: every joined record carries the gate inputs.
func checkGateFeatures(records []*domain.AnalysisRecord) SufficiencyCheck {
	if len(records) == 0 {
		return SufficiencyCheck{
			Name:      "Gate feature coverage",
			Threshold: "100%",
			Actual:    "n/a",
			Pass:      false,
		}
	}

	covered := 0
	for _, rec := range records {
		if rec.Feature.SentimentBalance != nil && rec.Feature.WhaleCount100k != nil {
			covered++
		}
	}
	pct := float64(covered) / float64(len(records)) * 100
	return SufficiencyCheck{
		Name:      "Gate feature coverage",
		Threshold: "100%",
		Actual:    fmt.Sprintf("%.1f%%", pct),
		Pass:      covered == len(records),
	}
}
