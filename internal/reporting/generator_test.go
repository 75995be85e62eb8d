package reporting

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage/memory"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func ptr(v float64) *float64 { return &v }

func fixture() BuildInput {
	bars := []*domain.DailyBar{
		{Date: day(0), Open: 99, High: 101, Low: 98, Close: 100, Volume: 1000},
		{Date: day(1), Open: 100, High: 113, Low: 100, Close: 112, Volume: 1500},
		{Date: day(2), Open: 112, High: 112, Low: 108, Close: 110, Volume: 900},
	}
	signals := []*domain.Signal{
		{SignalID: "s2", StrategyID: "trend", Date: day(2), Price: 110},
		{SignalID: "s1", StrategyID: "trend", Date: day(0), Price: 100},
	}
	exits := []*domain.ExitEvent{
		{
			ExitID: "e1", SignalID: "s1", ExitRuleID: "rule",
			SignalDate: day(0), SignalPrice: 100,
			ExitDate: day(1), ExitPrice: 112,
			Return: 0.12, Reason: domain.ExitReasonTakeProfit, HoldDays: 1,
		},
	}
	records := []*domain.AnalysisRecord{
		{
			Bar:     bars[0],
			Feature: &domain.FeatureRecord{Date: day(0), SentimentBalance: ptr(21), WhaleCount100k: ptr(260)},
			MA:      domain.MovingAverages{MA5: ptr(98.5)},
		},
	}
	return BuildInput{
		GeneratedAt: fixedNow,
		StrategyID:  "trend",
		ExitRuleID:  "rule",
		Bars:        bars,
		Records:     records,
		Signals:     signals,
		Exits:       exits,
		Aggregate: &domain.StrategyAggregate{
			StrategyID: "trend", ExitRuleID: "rule",
			TotalSignals: 2, TotalExits: 1, Unresolved: 1, TakeProfits: 1,
			WinRate: 1, ReturnMean: 0.12, ReturnMedian: 0.12,
		},
	}
}

func TestBuild_JoinsExitsBySignalID(t *testing.T) {
	r := Build(fixture())

	if len(r.Signals) != 2 {
		t.Fatalf("expected 2 signal rows, got %d", len(r.Signals))
	}
	// Rows are sorted by signal date even though input was not.
	first, second := r.Signals[0], r.Signals[1]
	if first.SignalID != "s1" || first.Reason != "TAKE_PROFIT" || first.ExitDate == nil {
		t.Errorf("unexpected first row %+v", first)
	}
	if second.SignalID != "s2" || second.Reason != ReasonOpen || second.ExitDate != nil {
		t.Errorf("unexpected second row %+v", second)
	}
	if !r.DataSummary.DateRangeStart.Equal(day(0)) || !r.DataSummary.DateRangeEnd.Equal(day(2)) {
		t.Errorf("unexpected date range %+v", r.DataSummary)
	}
	if len(r.StrategyMetrics) != 1 || r.StrategyMetrics[0].Unresolved != 1 {
		t.Errorf("unexpected metrics %+v", r.StrategyMetrics)
	}
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(Build(fixture()))

	for _, want := range []string{
		"# BTC Signal Backtest Report",
		"Generated: 2024-06-01T12:00:00Z",
		"| Price Bars | 3 |",
		"| 2023-01-01 | 100.00 | 2023-01-02 | 112.00 | 12.00% | TAKE_PROFIT | 1 |",
		"| 2023-01-03 | 110.00 | - | - | - | OPEN | - |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(Build(BuildInput{GeneratedAt: fixedNow}))

	if !strings.Contains(md, "No signals detected.") || !strings.Contains(md, "No strategy metrics available.") {
		t.Errorf("expected empty placeholders, got:\n%s", md)
	}
	if !strings.Contains(md, "| Date Range Start | - |") {
		t.Error("expected dash for unknown date range")
	}
	if strings.Contains(md, "## Data Sufficiency") {
		t.Error("sufficiency section should be omitted without checks")
	}
}

func TestRenderMarkdown_Checks(t *testing.T) {
	in := fixture()
	in.Checks = []CheckRow{
		{Name: "Price bars", Threshold: ">= 20", Actual: "3", Pass: false},
		{Name: "Joined records", Threshold: ">= 1", Actual: "2", Pass: true},
	}
	md := RenderMarkdown(Build(in))

	for _, want := range []string{
		"## Data Sufficiency",
		"| Price bars | >= 20 | 3 | FAIL |",
		"| Joined records | >= 1 | 2 | PASS |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderCSVs(t *testing.T) {
	in := fixture()
	r := Build(in)

	signals := RenderSignalsCSV(r.Signals)
	lines := strings.Split(strings.TrimSpace(signals), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(lines))
	}
	if lines[1] != "s1,2023-01-01,100.00,2023-01-02,112.00,0.120000,TAKE_PROFIT,1" {
		t.Errorf("unexpected signal row %q", lines[1])
	}
	if lines[2] != "s2,2023-01-03,110.00,,,,OPEN," {
		t.Errorf("unexpected open row %q", lines[2])
	}

	exits := RenderExitsCSV(in.Exits)
	if !strings.Contains(exits, "e1,s1,rule,2023-01-01,100.00,2023-01-02,112.00,0.120000,TAKE_PROFIT,1") {
		t.Errorf("unexpected exits csv:\n%s", exits)
	}

	analysis := RenderAnalysisCSV(in.Records)
	if !strings.Contains(analysis, "2023-01-01,99,101,98,100,1000,0,21,,,260,,98.5,,,,,") {
		t.Errorf("unexpected analysis csv:\n%s", analysis)
	}

	markers := RenderMarkersCSV(in.Bars, in.Signals, in.Exits)
	for _, want := range []string{
		"2023-01-01,99,101,98,100,1000,100,",
		"2023-01-02,100,113,100,112,1500,,112",
		"2023-01-03,112,112,108,110,900,110,",
	} {
		if !strings.Contains(markers, want) {
			t.Errorf("markers missing %q:\n%s", want, markers)
		}
	}

	metrics := RenderCSV(r.StrategyMetrics)
	if !strings.HasPrefix(metrics, "strategy_id,exit_rule_id,") || !strings.Contains(metrics, "trend,rule,2,1,1,1,0,") {
		t.Errorf("unexpected metrics csv:\n%s", metrics)
	}
}

func TestWriteDir(t *testing.T) {
	in := fixture()
	dir := filepath.Join(t.TempDir(), "out")

	if err := WriteDir(dir, Render(Build(in), in)); err != nil {
		t.Fatalf("WriteDir: %v", err)
	}
	for _, name := range []string{FileReport, FileMetrics, FileSignals, FileExits, FileAnalysis, FileMarkers} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func TestGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	in := fixture()
	signalStore := memory.NewSignalStore()
	exitStore := memory.NewExitEventStore()

	if err := signalStore.InsertBulk(ctx, in.Signals); err != nil {
		t.Fatalf("insert signals: %v", err)
	}
	if err := exitStore.InsertBulk(ctx, in.Exits); err != nil {
		t.Fatalf("insert exits: %v", err)
	}

	gen := NewGenerator(signalStore, exitStore, memory.NewStrategyAggregateStore()).
		WithClock(func() time.Time { return fixedNow })
	r, err := gen.Generate(ctx, "trend", "rule")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if !r.GeneratedAt.Equal(fixedNow) {
		t.Errorf("expected injected clock, got %v", r.GeneratedAt)
	}
	if len(r.Signals) != 2 || r.DataSummary.TotalExits != 1 {
		t.Errorf("unexpected report %+v", r)
	}
	// No stored aggregate: metrics are recomputed.
	if len(r.StrategyMetrics) != 1 || r.StrategyMetrics[0].TakeProfits != 1 || r.StrategyMetrics[0].Unresolved != 1 {
		t.Errorf("unexpected metrics %+v", r.StrategyMetrics)
	}

	// Deterministic output with a fixed clock.
	r2, _ := gen.Generate(ctx, "trend", "rule")
	if RenderMarkdown(r) != RenderMarkdown(r2) {
		t.Error("report output is not deterministic")
	}
}

func TestGenerator_GenerateInputWithBars(t *testing.T) {
	ctx := context.Background()
	in := fixture()
	signalStore := memory.NewSignalStore()
	exitStore := memory.NewExitEventStore()
	barStore := memory.NewDailyBarStore()

	if err := signalStore.InsertBulk(ctx, in.Signals); err != nil {
		t.Fatalf("insert signals: %v", err)
	}
	if err := barStore.InsertBulk(ctx, in.Bars); err != nil {
		t.Fatalf("insert bars: %v", err)
	}

	gen := NewGenerator(signalStore, exitStore, nil).WithBarStore(barStore)
	got, err := gen.GenerateInput(ctx, "trend", "rule")
	if err != nil {
		t.Fatalf("GenerateInput: %v", err)
	}
	if len(got.Bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(got.Bars))
	}
	if len(got.Exits) != 0 || got.Aggregate == nil || got.Aggregate.Unresolved != 2 {
		t.Errorf("expected both signals open, got %+v", got.Aggregate)
	}

	r := Build(got)
	if !r.DataSummary.DateRangeStart.Equal(day(0)) || !r.DataSummary.DateRangeEnd.Equal(day(2)) {
		t.Errorf("unexpected date range %v - %v", r.DataSummary.DateRangeStart, r.DataSummary.DateRangeEnd)
	}
	if !strings.Contains(RenderMarkersCSV(got.Bars, got.Signals, got.Exits), "2023-01-03") {
		t.Error("markers missing last bar")
	}
}
