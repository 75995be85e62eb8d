package simulation

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/normalization"
	"btc-signal-lab/internal/strategy"
)

// Runner errors
var (
	ErrNoExitRule = errors.New("simulation runner requires an exit rule")
)

// Runner evaluates an exit rule for every signal.
type Runner struct {
	exitRule strategy.ExitRule
	workers  int
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	ExitRule strategy.ExitRule

	// Workers > 1 evaluates signals concurrently. Output order is unchanged.
	Workers int
}

// NewRunner creates a simulation runner.
func NewRunner(opts RunnerOptions) *Runner {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		exitRule: opts.ExitRule,
		workers:  workers,
	}
}

// ExitRuleID returns the identifier of the configured rule.
func (r *Runner) ExitRuleID() string {
	if r.exitRule == nil {
		return ""
	}
	return r.exitRule.ID()
}

// Run simulates exits for signals over prices.
// Steps:
//  1. Sort a copy of prices by date
//  2. Evaluate the exit rule per signal, serially or on a bounded worker pool
//  3. Drop signals without a qualifying exit, keeping signal order
//
// An empty price series or signal list yields no exits.
func (r *Runner) Run(ctx context.Context, prices []*domain.DailyBar, signals []*domain.Signal) ([]*domain.ExitEvent, error) {
	if r.exitRule == nil {
		return nil, ErrNoExitRule
	}
	if len(prices) == 0 || len(signals) == 0 {
		return nil, nil
	}

	// 1. Sort prices
	if !normalization.IsSorted(prices) {
		prices = normalization.SortedBars(prices)
	}

	// 2. Evaluate
	slots := make([]*domain.ExitEvent, len(signals))
	var err error
	if r.workers == 1 {
		err = r.runSerial(ctx, prices, signals, slots)
	} else {
		err = r.runParallel(ctx, prices, signals, slots)
	}
	if err != nil {
		return nil, err
	}

	// 3. Compact
	var exits []*domain.ExitEvent
	for _, ev := range slots {
		if ev != nil {
			exits = append(exits, ev)
		}
	}

	return exits, nil
}

func (r *Runner) runSerial(ctx context.Context, prices []*domain.DailyBar, signals []*domain.Signal, slots []*domain.ExitEvent) error {
	for i, sig := range signals {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := r.exitRule.Execute(ctx, &strategy.ExitInput{Signal: sig, Prices: prices})
		if err != nil {
			return fmt.Errorf("signal %s: %w", domain.DayKey(sig.Date), err)
		}
		slots[i] = ev
	}
	return nil
}

// runParallel shares prices read-only across workers. Each worker writes
// only its own slot, so no locking is needed.
func (r *Runner) runParallel(ctx context.Context, prices []*domain.DailyBar, signals []*domain.Signal, slots []*domain.ExitEvent) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, sig := range signals {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ev, err := r.exitRule.Execute(gctx, &strategy.ExitInput{Signal: sig, Prices: prices})
			if err != nil {
				return fmt.Errorf("signal %s: %w", domain.DayKey(sig.Date), err)
			}
			slots[i] = ev
			return nil
		})
	}

	return g.Wait()
}
