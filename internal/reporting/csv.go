package reporting

import (
	"fmt"
	"strings"

	"btc-signal-lab/internal/domain"
)

// RenderCSV renders strategy metrics as CSV string.
func RenderCSV(metrics []StrategyMetricRow) string {
	var sb strings.Builder

	sb.WriteString("strategy_id,exit_rule_id,total_signals,total_exits,unresolved,take_profits,stop_losses,win_rate,")
	sb.WriteString("return_mean,return_median,return_p10,return_p90,")
	sb.WriteString("max_drawdown,max_consecutive_losses,mean_hold_days\n")

	for _, m := range metrics {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%d,%d,%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d,%.2f\n",
			m.StrategyID,
			m.ExitRuleID,
			m.TotalSignals,
			m.TotalExits,
			m.Unresolved,
			m.TakeProfits,
			m.StopLosses,
			m.WinRate,
			m.ReturnMean,
			m.ReturnMedian,
			m.ReturnP10,
			m.ReturnP90,
			m.MaxDrawdown,
			m.MaxConsecutiveLosses,
			m.MeanHoldDays,
		))
	}

	return sb.String()
}

// RenderSignalsCSV renders one row per signal with its exit, if any.
func RenderSignalsCSV(rows []SignalRow) string {
	var sb strings.Builder

	sb.WriteString("signal_id,signal_date,signal_price,exit_date,exit_price,return,reason,hold_days\n")
	for _, s := range rows {
		exitDate, exitPrice, ret, hold := "", "", "", ""
		if s.ExitDate != nil {
			exitDate = formatDay(*s.ExitDate)
			exitPrice = fmt.Sprintf("%.2f", *s.ExitPrice)
			ret = fmt.Sprintf("%.6f", *s.Return)
			hold = fmt.Sprintf("%d", *s.HoldDays)
		}
		sb.WriteString(fmt.Sprintf("%s,%s,%.2f,%s,%s,%s,%s,%s\n",
			s.SignalID, formatDay(s.SignalDate), s.SignalPrice,
			exitDate, exitPrice, ret, s.Reason, hold))
	}

	return sb.String()
}

// RenderExitsCSV renders exit events as CSV string.
func RenderExitsCSV(exits []*domain.ExitEvent) string {
	var sb strings.Builder

	sb.WriteString("exit_id,signal_id,exit_rule_id,signal_date,signal_price,exit_date,exit_price,return,reason,hold_days\n")
	for _, e := range exits {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%.2f,%s,%.2f,%.6f,%s,%d\n",
			e.ExitID, e.SignalID, e.ExitRuleID,
			formatDay(e.SignalDate), e.SignalPrice,
			formatDay(e.ExitDate), e.ExitPrice,
			e.Return, e.Reason, e.HoldDays))
	}

	return sb.String()
}

// RenderAnalysisCSV renders joined records with their moving averages.
// Undefined values are written as empty cells.
func RenderAnalysisCSV(records []*domain.AnalysisRecord) string {
	var sb strings.Builder

	sb.WriteString("date,open,high,low,close,volume,change_pct,")
	sb.WriteString("sentiment_balance,unique_social_volume_1h,miners_to_exchanges_flow,whale_count_100k,whale_count_1m,")
	sb.WriteString("ma5,ma10,ma20,mv5,mv10,mv20\n")

	for _, r := range records {
		b, f, ma := r.Bar, r.Feature, r.MA
		sb.WriteString(fmt.Sprintf("%s,%g,%g,%g,%g,%g,%g,",
			formatDay(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume, b.ChangePct))
		sb.WriteString(strings.Join([]string{
			optional(f.SentimentBalance),
			optional(f.UniqueSocialVolume1h),
			optional(f.MinersToExchangesFlow),
			optional(f.WhaleCount100k),
			optional(f.WhaleCount1m),
			optional(ma.MA5),
			optional(ma.MA10),
			optional(ma.MA20),
			optional(ma.MV5),
			optional(ma.MV10),
			optional(ma.MV20),
		}, ","))
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderMarkersCSV renders every bar with buy and sell marker prices for
// external chart tools. Marker cells are empty on days without an event.
func RenderMarkersCSV(bars []*domain.DailyBar, signals []*domain.Signal, exits []*domain.ExitEvent) string {
	buys := make(map[string]float64, len(signals))
	for _, s := range signals {
		buys[domain.DayKey(s.Date)] = s.Price
	}
	sells := make(map[string]float64, len(exits))
	for _, e := range exits {
		sells[domain.DayKey(e.ExitDate)] = e.ExitPrice
	}

	var sb strings.Builder
	sb.WriteString("date,open,high,low,close,volume,buy_marker,sell_marker\n")
	for _, b := range bars {
		key := domain.DayKey(b.Date)
		buy, sell := "", ""
		if p, ok := buys[key]; ok {
			buy = fmt.Sprintf("%g", p)
		}
		if p, ok := sells[key]; ok {
			sell = fmt.Sprintf("%g", p)
		}
		sb.WriteString(fmt.Sprintf("%s,%g,%g,%g,%g,%g,%s,%s\n",
			key, b.Open, b.High, b.Low, b.Close, b.Volume, buy, sell))
	}

	return sb.String()
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%g", *v)
}
