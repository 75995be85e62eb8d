// Command report renders reports from signals and exits persisted by
// earlier backtest or server runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"btc-signal-lab/internal/app"
	"btc-signal-lab/internal/config"
	"btc-signal-lab/internal/logging"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/reporting"
	"btc-signal-lab/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config (optional)")
	backend := flag.String("backend", "", "Result store: postgres or sqlite (overrides config)")
	strategyID := flag.String("strategy-id", "", "Entry filter ID (default: derived from config)")
	exitRuleID := flag.String("exit-rule-id", "", "Exit rule ID (default: derived from config)")
	outputDir := flag.String("out", "", "Output directory (overrides config)")
	fixedClock := flag.String("generated-at", "", "Fixed RFC3339 timestamp for reproducible output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *outputDir != "" {
		cfg.Data.OutputDir = *outputDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.Backend == config.BackendMemory {
		fmt.Fprintln(os.Stderr, "Error: reports need a persistent backend (postgres or sqlite)")
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	logger = logging.Component(logger, "report")

	if *strategyID == "" || *exitRuleID == "" {
		filter, err := strategy.FilterFromConfig(cfg.FilterDomainConfig())
		if err != nil {
			logger.Fatal().Err(err).Msg("filter config")
		}
		rule, err := strategy.ExitFromConfig(cfg.ExitDomainConfig())
		if err != nil {
			logger.Fatal().Err(err).Msg("exit config")
		}
		if *strategyID == "" {
			*strategyID = filter.ID()
		}
		if *exitRuleID == "" {
			*exitRuleID = rule.ID()
		}
	}

	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer stores.Close()

	gen := reporting.NewGenerator(stores.Signals, stores.Exits, stores.Aggregates)
	if stores.Bars != nil {
		gen = gen.WithBarStore(stores.Bars)
	}
	if *fixedClock != "" {
		ts, err := time.Parse(time.RFC3339, *fixedClock)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid -generated-at")
		}
		gen = gen.WithClock(func() time.Time { return ts.UTC() })
	}

	in, err := gen.GenerateInput(ctx, *strategyID, *exitRuleID)
	if err != nil {
		logger.Fatal().Err(err).Msg("generate report")
	}
	r := reporting.Build(in)

	if err := reporting.WriteDir(cfg.Data.OutputDir, reporting.Render(r, in)); err != nil {
		logger.Fatal().Err(err).Msg("write report")
	}
	observability.RecordReportGenerated()

	logger.Info().
		Str("strategy_id", *strategyID).
		Str("exit_rule_id", *exitRuleID).
		Int("signals", r.DataSummary.TotalSignals).
		Int("exits", r.DataSummary.TotalExits).
		Str("dir", cfg.Data.OutputDir).
		Msg("report written")

	fmt.Printf("Report generated in %s:\n", cfg.Data.OutputDir)
	for _, name := range []string{
		reporting.FileReport, reporting.FileMetrics, reporting.FileSignals,
		reporting.FileExits, reporting.FileAnalysis, reporting.FileMarkers,
	} {
		fmt.Printf("  - %s\n", name)
	}
}
