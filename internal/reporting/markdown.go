package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# BTC Signal Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Entry filter: `%s` | Exit rule: `%s`\n\n", r.StrategyID, r.ExitRuleID))

	// Data Summary
	sb.WriteString("## Data Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Price Bars | %d |\n", r.DataSummary.TotalBars))
	sb.WriteString(fmt.Sprintf("| Joined Records | %d |\n", r.DataSummary.JoinedRecords))
	sb.WriteString(fmt.Sprintf("| Signals | %d |\n", r.DataSummary.TotalSignals))
	sb.WriteString(fmt.Sprintf("| Exits | %d |\n", r.DataSummary.TotalExits))
	sb.WriteString(fmt.Sprintf("| Date Range Start | %s |\n", formatDay(r.DataSummary.DateRangeStart)))
	sb.WriteString(fmt.Sprintf("| Date Range End | %s |\n", formatDay(r.DataSummary.DateRangeEnd)))
	sb.WriteString("\n")

	// Data Sufficiency
	if len(r.Checks) > 0 {
		sb.WriteString("## Data Sufficiency\n\n")
		sb.WriteString("| Check | Threshold | Actual | Status |\n")
		sb.WriteString("|-------|-----------|--------|--------|\n")
		for _, c := range r.Checks {
			status := "PASS"
			if !c.Pass {
				status = "FAIL"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", c.Name, c.Threshold, c.Actual, status))
		}
		sb.WriteString("\n")
	}

	// Strategy Metrics
	sb.WriteString("## Strategy Metrics\n\n")
	if len(r.StrategyMetrics) > 0 {
		sb.WriteString("| Filter | Exit | Signals | Exits | Open | TP | SL | WinRate | Mean | Median | P10 | P90 | MaxDD | MaxLoss | HoldDays |\n")
		sb.WriteString("|--------|------|---------|-------|------|----|----|---------|------|--------|-----|-----|-------|---------|----------|\n")
		for _, m := range r.StrategyMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %d | %.1f |\n",
				m.StrategyID, m.ExitRuleID,
				m.TotalSignals, m.TotalExits, m.Unresolved, m.TakeProfits, m.StopLosses,
				m.WinRate, m.ReturnMean, m.ReturnMedian, m.ReturnP10, m.ReturnP90,
				m.MaxDrawdown, m.MaxConsecutiveLosses, m.MeanHoldDays))
		}
	} else {
		sb.WriteString("No strategy metrics available.\n")
	}
	sb.WriteString("\n")

	// Signals
	sb.WriteString("## Signals\n\n")
	if len(r.Signals) > 0 {
		sb.WriteString("| Signal Date | Buy Price | Exit Date | Exit Price | Return | Reason | Days |\n")
		sb.WriteString("|-------------|-----------|-----------|------------|--------|--------|------|\n")
		for _, s := range r.Signals {
			if s.ExitDate == nil {
				sb.WriteString(fmt.Sprintf("| %s | %.2f | - | - | - | %s | - |\n",
					formatDay(s.SignalDate), s.SignalPrice, s.Reason))
				continue
			}
			sb.WriteString(fmt.Sprintf("| %s | %.2f | %s | %.2f | %.2f%% | %s | %d |\n",
				formatDay(s.SignalDate), s.SignalPrice,
				formatDay(*s.ExitDate), *s.ExitPrice, *s.Return*100, s.Reason, *s.HoldDays))
		}
	} else {
		sb.WriteString("No signals detected.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.DateOnly)
}
