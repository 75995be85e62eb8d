// Command verify replays the exit rule over stored signals and reports any
// stored exit that no longer matches.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"btc-signal-lab/internal/app"
	"btc-signal-lab/internal/config"
	"btc-signal-lab/internal/logging"
	"btc-signal-lab/internal/storage"
	"btc-signal-lab/internal/storage/memory"
	"btc-signal-lab/internal/strategy"
	"btc-signal-lab/internal/verification"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config (optional)")
	backend := flag.String("backend", "", "Result store backend: postgres or sqlite (overrides config)")
	signalID := flag.String("signal-id", "", "Verify a single signal")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
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
	logger = logging.Component(logger, "verify")

	if cfg.Storage.Backend == config.BackendMemory {
		logger.Fatal().Msg("verify needs a persistent backend (postgres or sqlite)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filter, err := strategy.FilterFromConfig(cfg.FilterDomainConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("build entry filter")
	}
	rule, err := strategy.ExitFromConfig(cfg.ExitDomainConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("build exit rule")
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open stores")
	}
	defer stores.Close()

	bars, err := barStore(ctx, cfg, stores, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load bars")
	}

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		SignalStore:    stores.Signals,
		ExitEventStore: stores.Exits,
		BarStore:       bars,
		ExitRule:       rule,
	})

	var report *verification.Report
	if *signalID != "" {
		result, err := verifier.VerifySignal(ctx, *signalID)
		if err != nil {
			logger.Fatal().Err(err).Str("signal_id", *signalID).Msg("verify signal")
		}
		report = &verification.Report{
			StrategyID: filter.ID(),
			ExitRuleID: rule.ID(),
			Total:      1,
			Results:    []verification.Result{*result},
		}
		if result.Match {
			report.Matched = 1
		} else {
			report.Divergent = 1
		}
	} else {
		report, err = verifier.VerifyAll(ctx, filter.ID())
		if err != nil {
			logger.Fatal().Err(err).Msg("verify")
		}
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
	} else {
		printReport(report)
	}

	if report.Divergent > 0 {
		os.Exit(1)
	}
}

// barStore returns the stored series, or the configured CSV loaded into
// memory when ClickHouse is not set up.
func barStore(ctx context.Context, cfg *config.Config, stores *app.Stores, logger zerolog.Logger) (storage.DailyBarStore, error) {
	if stores.Bars != nil {
		return stores.Bars, nil
	}

	in, err := app.LoadCSV(cfg.Data.PriceCSV, cfg.Data.FeatureCSV, nil)
	if err != nil {
		return nil, err
	}
	bars := memory.NewDailyBarStore()
	if err := bars.InsertBulk(ctx, in.Bars); err != nil {
		return nil, err
	}
	logger.Info().Int("bars", len(in.Bars)).Str("path", cfg.Data.PriceCSV).Msg("bars loaded from csv")
	return bars, nil
}

func printReport(r *verification.Report) {
	fmt.Printf("\n=== Verification Summary ===\n")
	fmt.Printf("Entry Filter:  %s\n", r.StrategyID)
	fmt.Printf("Exit Rule:     %s\n", r.ExitRuleID)
	fmt.Printf("Signals:       %d\n", r.Total)
	fmt.Printf("Matched:       %d\n", r.Matched)
	fmt.Printf("Divergent:     %d\n", r.Divergent)

	for _, res := range r.Results {
		if res.Match {
			continue
		}
		fmt.Printf("\n%s\n", res.SignalID)
		for _, d := range res.Divergences {
			fmt.Printf("  %-12s stored=%v replayed=%v\n", d.Field, d.Expected, d.Actual)
		}
	}
}
