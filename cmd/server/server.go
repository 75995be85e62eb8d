package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/observability"
	"btc-signal-lab/internal/pipeline"
	"btc-signal-lab/internal/storage"
	"btc-signal-lab/internal/strategy"
)

const pipelineLock = "pipeline"

// locker serializes scheduled runs across replicas.
type locker interface {
	TryLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name, token string) error
}

type invalidator interface {
	Invalidate(ctx context.Context) error
}

type publisher interface {
	Publish(ctx context.Context, signals []*domain.Signal, exits []*domain.ExitEvent) error
}

// Server runs the pipeline on a cron schedule and tracks run state.
type Server struct {
	filter    strategy.EntryFilter
	rule      strategy.ExitRule
	workers   int
	outputDir string

	load func(ctx context.Context) (pipeline.Input, error)

	signalStore    storage.SignalStore
	exitEventStore storage.ExitEventStore
	aggregateStore storage.StrategyAggregateStore

	// Optional
	lock      locker
	lockTTL   time.Duration
	cache     invalidator
	publisher publisher

	metrics *observability.Metrics
	logger  zerolog.Logger
	cron    *cron.Cron

	// State
	mu        sync.Mutex
	started   time.Time
	running   bool
	runs      int
	failures  int
	skipped   int
	lastRun   time.Time
	lastError string
	lastStats runStats
}

type runStats struct {
	Signals    int     `json:"signals"`
	Exits      int     `json:"exits"`
	Unresolved int     `json:"unresolved"`
	WinRate    float64 `json:"win_rate"`
}

// StatusResponse is the JSON body of /api/status.
type StatusResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	StrategyID string    `json:"strategy_id"`
	ExitRuleID string    `json:"exit_rule_id"`
	Running    bool      `json:"running"`
	Runs       int       `json:"runs"`
	Failures   int       `json:"failures"`
	Skipped    int       `json:"skipped"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	LastResult runStats  `json:"last_result"`
	NextRun    time.Time `json:"next_run,omitempty"`
}

// Schedule registers the pipeline job and starts the cron scheduler.
func (s *Server) Schedule(ctx context.Context, spec string) error {
	s.cron = cron.New(cron.WithSeconds())
	if _, err := s.cron.AddFunc(spec, func() { s.runPipeline(ctx) }); err != nil {
		return fmt.Errorf("register pipeline job %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", spec).Msg("scheduler started")
	return nil
}

// StopScheduler stops new runs and waits for a running job.
func (s *Server) StopScheduler() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// runPipeline executes one run unless one is already in progress here or,
// with a lock configured, on another replica.
func (s *Server) runPipeline(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Msg("pipeline already running, skipping scheduled run")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.lock != nil {
		token := lockToken()
		ok, err := s.lock.TryLock(ctx, pipelineLock, token, s.lockTTL)
		if err != nil {
			s.finish(runStats{}, fmt.Errorf("acquire run lock: %w", err))
			return
		}
		if !ok {
			s.mu.Lock()
			s.skipped++
			s.mu.Unlock()
			s.logger.Info().Msg("another replica holds the run lock, skipping")
			return
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx), pipelineLock, token); err != nil {
				s.logger.Warn().Err(err).Msg("release run lock")
			}
		}()
	}

	stats, err := s.runOnce(ctx)
	s.finish(stats, err)
}

func (s *Server) runOnce(ctx context.Context) (runStats, error) {
	start := time.Now()
	s.logger.Info().Msg("pipeline run started")

	in, err := s.load(ctx)
	if err != nil {
		return runStats{}, fmt.Errorf("load input: %w", err)
	}

	p, err := pipeline.New(pipeline.Options{
		Filter:         s.filter,
		ExitRule:       s.rule,
		Workers:        s.workers,
		SignalStore:    s.signalStore,
		ExitEventStore: s.exitEventStore,
		AggregateStore: s.aggregateStore,
		Metrics:        s.metrics,
		Logger:         s.logger,
	})
	if err != nil {
		return runStats{}, err
	}

	res, err := p.Run(ctx, in)
	if err != nil {
		return runStats{}, err
	}

	if s.outputDir != "" {
		if err := pipeline.WriteReports(s.outputDir, res); err != nil {
			return runStats{}, fmt.Errorf("write reports: %w", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res.Signals, res.Exits); err != nil {
			// Results are stored; a publish failure does not fail the run.
			s.logger.Error().Err(err).Msg("publish results")
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("invalidate cache")
		}
	}

	s.logger.Info().Dur("took", time.Since(start)).Msg("pipeline run completed")
	return runStats{
		Signals:    len(res.Signals),
		Exits:      len(res.Exits),
		Unresolved: res.Aggregate.Unresolved,
		WinRate:    res.Aggregate.WinRate,
	}, nil
}

func (s *Server) finish(stats runStats, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	s.lastRun = time.Now().UTC()
	if err != nil {
		s.failures++
		s.lastError = err.Error()
		s.logger.Error().Err(err).Msg("pipeline run failed")
		return
	}
	s.lastError = ""
	s.lastStats = stats
}

// Status returns a snapshot of the run state.
func (s *Server) Status() StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:     "running",
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		StrategyID: s.filter.ID(),
		ExitRuleID: s.rule.ID(),
		Running:    s.running,
		Runs:       s.runs,
		Failures:   s.failures,
		Skipped:    s.skipped,
		LastRun:    s.lastRun,
		LastError:  s.lastError,
		LastResult: s.lastStats,
	}
	if s.cron != nil {
		if entries := s.cron.Entries(); len(entries) > 0 {
			resp.NextRun = entries[0].Next
		}
	}
	return resp
}

func lockToken() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}
