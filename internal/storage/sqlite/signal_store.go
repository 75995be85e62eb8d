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

// SignalStore implements storage.SignalStore on SQLite.
type SignalStore struct {
	db *DB
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(db *DB) *SignalStore {
	return &SignalStore{db: db}
}

var _ storage.SignalStore = (*SignalStore)(nil)

// InsertBulk adds signals atomically. Fails entire batch on any duplicate.
func (s *SignalStore) InsertBulk(ctx context.Context, signals []*domain.Signal) (err error) {
	if len(signals) == 0 {
		return nil
	}
	for _, sig := range signals {
		if sig == nil || sig.SignalID == "" {
			return storage.ErrInvalidInput
		}
	}
	defer observe("insert_signals", time.Now(), &err)

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO signals (signal_id, strategy_id, signal_date, price)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert signal: %w", err)
		}
		defer stmt.Close()

		for _, sig := range signals {
			if _, err := stmt.ExecContext(ctx, sig.SignalID, sig.StrategyID, domain.DayKey(sig.Date), sig.Price); err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert signal %s: %w", sig.SignalID, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a signal by its ID. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(ctx context.Context, signalID string) (*domain.Signal, error) {
	row := s.db.db.QueryRowContext(ctx, `
		SELECT signal_id, strategy_id, signal_date, price
		FROM signals
		WHERE signal_id = ?
	`, signalID)

	sig, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal by id: %w", err)
	}
	return sig, nil
}

// GetByStrategy retrieves all signals of a filter, ordered by date ASC.
func (s *SignalStore) GetByStrategy(ctx context.Context, strategyID string) (_ []*domain.Signal, err error) {
	defer observe("select_signals", time.Now(), &err)

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT signal_id, strategy_id, signal_date, price
		FROM signals
		WHERE strategy_id = ?
		ORDER BY signal_date ASC
	`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query signals by strategy: %w", err)
	}
	defer rows.Close()

	var signals []*domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}
	return signals, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSignal(row scanner) (*domain.Signal, error) {
	var sig domain.Signal
	var date string
	if err := row.Scan(&sig.SignalID, &sig.StrategyID, &date, &sig.Price); err != nil {
		return nil, err
	}
	d, err := parseDay(date)
	if err != nil {
		return nil, err
	}
	sig.Date = d
	return &sig, nil
}
