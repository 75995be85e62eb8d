package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// ExitEventStore implements storage.ExitEventStore using PostgreSQL.
type ExitEventStore struct {
	pool *Pool
}

// NewExitEventStore creates a new ExitEventStore.
func NewExitEventStore(pool *Pool) *ExitEventStore {
	return &ExitEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExitEventStore = (*ExitEventStore)(nil)

const exitEventColumns = `
	exit_id, signal_id, exit_rule_id,
	signal_date, signal_price, exit_date, exit_price,
	reason, return_pct, hold_days`

// InsertBulk adds multiple exits atomically. Fails entire batch on any duplicate
// exit_id or (signal_id, exit_rule_id).
func (s *ExitEventStore) InsertBulk(ctx context.Context, exits []*domain.ExitEvent) (err error) {
	if len(exits) == 0 {
		return nil
	}
	for _, e := range exits {
		if e == nil || e.ExitID == "" || !e.Reason.IsValid() {
			return storage.ErrInvalidInput
		}
	}
	defer observe("insert_exits", time.Now(), &err)

	rows := make([][]any, len(exits))
	for i, e := range exits {
		rows[i] = []any{
			e.ExitID, e.SignalID, e.ExitRuleID,
			domain.Day(e.SignalDate), e.SignalPrice, domain.Day(e.ExitDate), e.ExitPrice,
			e.Reason.String(), e.Return, e.HoldDays,
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// COPY is all-or-nothing: a unique violation aborts the whole copy.
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"exit_events"},
		[]string{
			"exit_id", "signal_id", "exit_rule_id",
			"signal_date", "signal_price", "exit_date", "exit_price",
			"reason", "return_pct", "hold_days",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy exit events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetBySignalID retrieves the exit of one signal under one rule. Returns ErrNotFound if not exists.
func (s *ExitEventStore) GetBySignalID(ctx context.Context, signalID, exitRuleID string) (*domain.ExitEvent, error) {
	query := `SELECT ` + exitEventColumns + `
		FROM exit_events
		WHERE signal_id = $1 AND exit_rule_id = $2
	`

	rows, err := s.pool.Query(ctx, query, signalID, exitRuleID)
	if err != nil {
		return nil, fmt.Errorf("query exit by signal: %w", err)
	}
	defer rows.Close()

	exits, err := scanExitEvents(rows)
	if err != nil {
		return nil, err
	}
	if len(exits) == 0 {
		return nil, storage.ErrNotFound
	}
	return exits[0], nil
}

// GetByExitRule retrieves all exits of a rule, ordered by signal date ASC.
func (s *ExitEventStore) GetByExitRule(ctx context.Context, exitRuleID string) (_ []*domain.ExitEvent, err error) {
	defer observe("select_exits", time.Now(), &err)

	query := `SELECT ` + exitEventColumns + `
		FROM exit_events
		WHERE exit_rule_id = $1
		ORDER BY signal_date ASC, signal_id ASC
	`

	rows, err := s.pool.Query(ctx, query, exitRuleID)
	if err != nil {
		return nil, fmt.Errorf("query exits by rule: %w", err)
	}
	defer rows.Close()

	return scanExitEvents(rows)
}

// scanExitEvents scans multiple rows into a slice of ExitEvent.
func scanExitEvents(rows pgx.Rows) ([]*domain.ExitEvent, error) {
	var exits []*domain.ExitEvent

	for rows.Next() {
		var e domain.ExitEvent
		var reason string
		var holdDays int32

		err := rows.Scan(
			&e.ExitID, &e.SignalID, &e.ExitRuleID,
			&e.SignalDate, &e.SignalPrice, &e.ExitDate, &e.ExitPrice,
			&reason, &e.Return, &holdDays,
		)
		if err != nil {
			return nil, fmt.Errorf("scan exit event row: %w", err)
		}

		e.SignalDate = domain.Day(e.SignalDate)
		e.ExitDate = domain.Day(e.ExitDate)
		e.Reason = domain.ExitReason(reason)
		e.HoldDays = int(holdDays)
		exits = append(exits, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exit event rows: %w", err)
	}

	return exits, nil
}
