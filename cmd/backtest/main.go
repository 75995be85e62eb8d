// Command backtest runs the trend filter and exit simulation once and
// writes the reports.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"btc-signal-lab/internal/app"
	"btc-signal-lab/internal/config"
	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/logging"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/orchestrator"
	"btc-signal-lab/internal/pipeline"
	"btc-signal-lab/internal/reporting"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config (optional)")
	pricePath := flag.String("price", "", "Price CSV (overrides config)")
	featurePath := flag.String("features", "", "Feature CSV (overrides config)")
	outputDir := flag.String("out", "", "Report output directory (overrides config)")
	workers := flag.Int("workers", 0, "Parallel exit scans (overrides config)")
	takeProfit := flag.Float64("tp", 0, "Take-profit return, e.g. 0.10 (overrides config)")
	stopLoss := flag.Float64("sl", 0, "Stop-loss return, e.g. -0.15 (overrides config)")
	demo := flag.Bool("demo", false, "Run on a generated demo series instead of CSV/ClickHouse")
	demoDays := flag.Int("demo-days", 120, "Length of the demo series")
	sweepTP := flag.String("sweep-tp", "", "Comma-separated take-profit values for a parameter sweep")
	sweepSL := flag.String("sweep-sl", "", "Comma-separated stop-loss values for a parameter sweep")
	outputJSON := flag.Bool("json", false, "Print the summary as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *pricePath != "" {
		cfg.Data.PriceCSV = *pricePath
	}
	if *featurePath != "" {
		cfg.Data.FeatureCSV = *featurePath
	}
	if *outputDir != "" {
		cfg.Data.OutputDir = *outputDir
	}
	if *workers > 0 {
		cfg.Simulation.Workers = *workers
	}
	if set["tp"] {
		cfg.Exit.TakeProfit = *takeProfit
	}
	if set["sl"] {
		cfg.Exit.StopLoss = *stopLoss
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	logger = logging.Component(logger, "backtest")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer stores.Close()

	var in pipeline.Input
	if *demo {
		in = pipeline.SyntheticInput(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), *demoDays)
		logger.Info().Int("days", *demoDays).Msg("using demo series")
	} else {
		in, err = app.LoadInput(ctx, cfg, stores, observability.DefaultMetrics)
		if err != nil {
			logger.Fatal().Err(err).Msg("load input")
		}
	}

	exitConfigs := []domain.ExitConfig{cfg.ExitDomainConfig()}
	if *sweepTP != "" || *sweepSL != "" {
		tps, err := parseFloats(*sweepTP, cfg.Exit.TakeProfit)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid -sweep-tp")
		}
		sls, err := parseFloats(*sweepSL, cfg.Exit.StopLoss)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid -sweep-sl")
		}
		exitConfigs = orchestrator.ExitGrid(tps, sls)
	}

	orch := orchestrator.New(orchestrator.Options{
		SignalStore:    stores.Signals,
		ExitEventStore: stores.Exits,
		AggregateStore: stores.Aggregates,
		FilterConfigs:  []domain.FilterConfig{cfg.FilterDomainConfig()},
		ExitConfigs:    exitConfigs,
		Workers:        cfg.Simulation.Workers,
		Metrics:        observability.DefaultMetrics,
		Logger:         logger,
	})

	result, err := orch.RunInput(ctx, in)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest failed")
	}
	for _, e := range result.Errors {
		logger.Error().Str("error", e).Msg("combination failed")
	}

	if err := writeReports(cfg.Data.OutputDir, result); err != nil {
		logger.Fatal().Err(err).Msg("write reports")
	}

	publishResults(ctx, cfg, result, logger)

	if *outputJSON {
		printJSON(result)
	} else {
		printSummary(result, cfg.Data.OutputDir)
	}

	if len(result.Results) == 0 {
		os.Exit(1)
	}
}

// writeReports writes one directory per exit rule when sweeping, and the
// output directory itself for a single run.
func writeReports(dir string, result *orchestrator.RunResult) error {
	if len(result.Results) == 1 {
		return pipeline.WriteReports(dir, result.Results[0])
	}
	for _, res := range result.Results {
		if err := pipeline.WriteReports(filepath.Join(dir, res.ExitRuleID), res); err != nil {
			return err
		}
	}
	summary := reporting.RenderCSV(reporting.MetricRows(result.Aggregates()))
	return reporting.WriteDir(dir, []reporting.File{{Name: "sweep.csv", Content: summary}})
}

func publishResults(ctx context.Context, cfg *config.Config, result *orchestrator.RunResult, logger zerolog.Logger) {
	producer, err := app.OpenPublisher(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("create publisher")
		return
	}
	if producer == nil {
		return
	}
	defer producer.Close()

	for _, res := range result.Results {
		if err := producer.Publish(ctx, res.Signals, res.Exits); err != nil {
			logger.Error().Err(err).Str("exit_rule_id", res.ExitRuleID).Msg("publish results")
		}
	}
}

// parseFloats parses a comma-separated list. An empty list yields fallback.
func parseFloats(s string, fallback float64) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return []float64{fallback}, nil
	}
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", part, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values in %q", s)
	}
	return out, nil
}

func printSummary(result *orchestrator.RunResult, dir string) {
	fmt.Println("=== BTC Signal Backtest ===")
	fmt.Printf("Combinations: %d\n", result.Combinations)
	for _, res := range result.Results {
		agg := res.Aggregate
		fmt.Printf("\n%s / %s\n", res.StrategyID, res.ExitRuleID)
		fmt.Printf("  Signals:      %d\n", agg.TotalSignals)
		fmt.Printf("  Exits:        %d (TP %d, SL %d, open %d)\n", agg.TotalExits, agg.TakeProfits, agg.StopLosses, agg.Unresolved)
		fmt.Printf("  Win rate:     %.2f%%\n", agg.WinRate*100)
		fmt.Printf("  Mean return:  %.2f%%\n", agg.ReturnMean*100)
		fmt.Printf("  Max drawdown: %.2f%%\n", agg.MaxDrawdown*100)
		fmt.Printf("  Mean hold:    %.1f days\n", agg.MeanHoldDays)
		if !res.Sufficiency.AllPass {
			fmt.Println("  Warning: data sufficiency checks failed, see REPORT.md")
		}
	}
	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	fmt.Printf("\nReports written to %s\n", dir)
}

func printJSON(result *orchestrator.RunResult) {
	type row struct {
		StrategyID  string  `json:"strategy_id"`
		ExitRuleID  string  `json:"exit_rule_id"`
		Signals     int     `json:"signals"`
		Exits       int     `json:"exits"`
		Open        int     `json:"open"`
		TakeProfits int     `json:"take_profits"`
		StopLosses  int     `json:"stop_losses"`
		WinRate     float64 `json:"win_rate"`
		ReturnMean  float64 `json:"return_mean"`
	}
	rows := make([]row, 0, len(result.Results))
	for _, res := range result.Results {
		agg := res.Aggregate
		rows = append(rows, row{
			StrategyID:  agg.StrategyID,
			ExitRuleID:  agg.ExitRuleID,
			Signals:     agg.TotalSignals,
			Exits:       agg.TotalExits,
			Open:        agg.Unresolved,
			TakeProfits: agg.TakeProfits,
			StopLosses:  agg.StopLosses,
			WinRate:     agg.WinRate,
			ReturnMean:  agg.ReturnMean,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"results": rows, "errors": result.Errors}); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
