package clickhouse

import (
	"context"
	"fmt"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// StrategyAggregateStore implements storage.StrategyAggregateStore using ClickHouse.
type StrategyAggregateStore struct {
	conn *Conn
	now  func() time.Time
}

// NewStrategyAggregateStore creates a new StrategyAggregateStore.
func NewStrategyAggregateStore(conn *Conn) *StrategyAggregateStore {
	return &StrategyAggregateStore{
		conn: conn,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Compile-time interface check.
var _ storage.StrategyAggregateStore = (*StrategyAggregateStore)(nil)

const aggregateColumns = `
	strategy_id, exit_rule_id,
	total_signals, total_exits, unresolved, take_profits, stop_losses, win_rate,
	return_mean, return_median, return_p10, return_p90, return_min, return_max, return_stddev,
	max_drawdown, max_consecutive_losses, mean_hold_days, max_hold_days`

const aggregateInsertColumns = aggregateColumns + `, computed_at`

// Insert adds a new aggregate. Returns ErrDuplicateKey if key exists.
func (s *StrategyAggregateStore) Insert(ctx context.Context, a *domain.StrategyAggregate) error {
	if a == nil || a.StrategyID == "" || a.ExitRuleID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := s.exists(ctx, a.StrategyID, a.ExitRuleID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}
	return s.insert(ctx, a)
}

// Upsert stores an aggregate. The table is a ReplacingMergeTree versioned by
// computed_at, so reads with FINAL return the latest row per key.
func (s *StrategyAggregateStore) Upsert(ctx context.Context, a *domain.StrategyAggregate) error {
	if a == nil || a.StrategyID == "" || a.ExitRuleID == "" {
		return storage.ErrInvalidInput
	}
	return s.insert(ctx, a)
}

func (s *StrategyAggregateStore) insert(ctx context.Context, a *domain.StrategyAggregate) error {
	query := `INSERT INTO strategy_aggregates (` + aggregateInsertColumns + `
		) VALUES (
			?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?
		)
	`

	err := s.conn.Exec(ctx, query,
		a.StrategyID, a.ExitRuleID,
		uint32(a.TotalSignals), uint32(a.TotalExits), uint32(a.Unresolved),
		uint32(a.TakeProfits), uint32(a.StopLosses), a.WinRate,
		a.ReturnMean, a.ReturnMedian, a.ReturnP10, a.ReturnP90, a.ReturnMin, a.ReturnMax, a.ReturnStddev,
		a.MaxDrawdown, uint32(a.MaxConsecutiveLosses), a.MeanHoldDays, uint32(a.MaxHoldDays),
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("insert strategy aggregate: %w", err)
	}
	return nil
}

// GetByKey retrieves an aggregate by its composite key.
func (s *StrategyAggregateStore) GetByKey(ctx context.Context, strategyID, exitRuleID string) (*domain.StrategyAggregate, error) {
	query := `SELECT ` + aggregateColumns + `
		FROM strategy_aggregates FINAL
		WHERE strategy_id = ? AND exit_rule_id = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, strategyID, exitRuleID)
	if err != nil {
		return nil, fmt.Errorf("query by key: %w", err)
	}
	defer rows.Close()

	aggs, err := scanStrategyAggregates(rows)
	if err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return nil, storage.ErrNotFound
	}
	return aggs[0], nil
}

// GetAll retrieves all aggregates.
func (s *StrategyAggregateStore) GetAll(ctx context.Context) ([]*domain.StrategyAggregate, error) {
	query := `SELECT ` + aggregateColumns + `
		FROM strategy_aggregates FINAL
		ORDER BY strategy_id ASC, exit_rule_id ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all: %w", err)
	}
	defer rows.Close()

	return scanStrategyAggregates(rows)
}

// exists checks if an aggregate with the given key exists.
func (s *StrategyAggregateStore) exists(ctx context.Context, strategyID, exitRuleID string) (bool, error) {
	query := `
		SELECT count(*) FROM strategy_aggregates FINAL
		WHERE strategy_id = ? AND exit_rule_id = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query, strategyID, exitRuleID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanStrategyAggregates scans multiple rows into a slice.
func scanStrategyAggregates(rows chRows) ([]*domain.StrategyAggregate, error) {
	var aggregates []*domain.StrategyAggregate

	for rows.Next() {
		var a domain.StrategyAggregate
		var totalSignals, totalExits, unresolved, takeProfits, stopLosses, maxLosses, maxHold uint32
		err := rows.Scan(
			&a.StrategyID, &a.ExitRuleID,
			&totalSignals, &totalExits, &unresolved, &takeProfits, &stopLosses, &a.WinRate,
			&a.ReturnMean, &a.ReturnMedian, &a.ReturnP10, &a.ReturnP90, &a.ReturnMin, &a.ReturnMax, &a.ReturnStddev,
			&a.MaxDrawdown, &maxLosses, &a.MeanHoldDays, &maxHold,
		)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		a.TotalSignals = int(totalSignals)
		a.TotalExits = int(totalExits)
		a.Unresolved = int(unresolved)
		a.TakeProfits = int(takeProfits)
		a.StopLosses = int(stopLosses)
		a.MaxConsecutiveLosses = int(maxLosses)
		a.MaxHoldDays = int(maxHold)
		aggregates = append(aggregates, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}

	return aggregates, nil
}
