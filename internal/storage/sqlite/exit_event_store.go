package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// ExitEventStore implements storage.ExitEventStore on SQLite.
type ExitEventStore struct {
	db *DB
}

// NewExitEventStore creates a new ExitEventStore.
func NewExitEventStore(db *DB) *ExitEventStore {
	return &ExitEventStore{db: db}
}

var _ storage.ExitEventStore = (*ExitEventStore)(nil)

const exitEventColumns = `
	exit_id, signal_id, exit_rule_id,
	signal_date, signal_price, exit_date, exit_price,
	reason, return_pct, hold_days`

// InsertBulk adds exits atomically. Fails entire batch on any duplicate
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

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO exit_events (`+exitEventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert exit: %w", err)
		}
		defer stmt.Close()

		for _, e := range exits {
			_, err := stmt.ExecContext(ctx,
				e.ExitID, e.SignalID, e.ExitRuleID,
				domain.DayKey(e.SignalDate), e.SignalPrice, domain.DayKey(e.ExitDate), e.ExitPrice,
				e.Reason.String(), e.Return, e.HoldDays,
			)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert exit %s: %w", e.ExitID, err)
			}
		}
		return nil
	})
}

// GetBySignalID retrieves the exit of one signal under one rule. Returns ErrNotFound if not exists.
func (s *ExitEventStore) GetBySignalID(ctx context.Context, signalID, exitRuleID string) (*domain.ExitEvent, error) {
	row := s.db.db.QueryRowContext(ctx, `SELECT `+exitEventColumns+`
		FROM exit_events
		WHERE signal_id = ? AND exit_rule_id = ?
	`, signalID, exitRuleID)

	e, err := scanExitEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get exit by signal: %w", err)
	}
	return e, nil
}

// GetByExitRule retrieves all exits of a rule, ordered by signal date ASC.
func (s *ExitEventStore) GetByExitRule(ctx context.Context, exitRuleID string) (_ []*domain.ExitEvent, err error) {
	defer observe("select_exits", time.Now(), &err)

	rows, err := s.db.db.QueryContext(ctx, `SELECT `+exitEventColumns+`
		FROM exit_events
		WHERE exit_rule_id = ?
		ORDER BY signal_date ASC, signal_id ASC
	`, exitRuleID)
	if err != nil {
		return nil, fmt.Errorf("query exits by rule: %w", err)
	}
	defer rows.Close()

	var exits []*domain.ExitEvent
	for rows.Next() {
		e, err := scanExitEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exit event row: %w", err)
		}
		exits = append(exits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exit event rows: %w", err)
	}
	return exits, nil
}

func scanExitEvent(row scanner) (*domain.ExitEvent, error) {
	var e domain.ExitEvent
	var signalDate, exitDate, reason string

	err := row.Scan(
		&e.ExitID, &e.SignalID, &e.ExitRuleID,
		&signalDate, &e.SignalPrice, &exitDate, &e.ExitPrice,
		&reason, &e.Return, &e.HoldDays,
	)
	if err != nil {
		return nil, err
	}

	if e.SignalDate, err = parseDay(signalDate); err != nil {
		return nil, err
	}
	if e.ExitDate, err = parseDay(exitDate); err != nil {
		return nil, err
	}
	e.Reason = domain.ExitReason(reason)
	return &e, nil
}
