package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// SignalStore implements storage.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *Pool
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SignalStore = (*SignalStore)(nil)

// InsertBulk adds multiple signals atomically. Fails entire batch on any duplicate.
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, sig := range signals {
		batch.Queue(`
			INSERT INTO signals (signal_id, strategy_id, signal_date, price)
			VALUES ($1, $2, $3, $4)
		`, sig.SignalID, sig.StrategyID, domain.Day(sig.Date), sig.Price)
	}

	results := tx.SendBatch(ctx, batch)
	for range signals {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert signal in bulk: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a signal by its ID. Returns ErrNotFound if not exists.
func (s *SignalStore) GetByID(ctx context.Context, signalID string) (*domain.Signal, error) {
	query := `
		SELECT signal_id, strategy_id, signal_date, price
		FROM signals
		WHERE signal_id = $1
	`

	var sig domain.Signal
	err := s.pool.QueryRow(ctx, query, signalID).Scan(&sig.SignalID, &sig.StrategyID, &sig.Date, &sig.Price)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get signal by id: %w", err)
	}
	sig.Date = domain.Day(sig.Date)
	return &sig, nil
}

// GetByStrategy retrieves all signals of a filter, ordered by date ASC.
func (s *SignalStore) GetByStrategy(ctx context.Context, strategyID string) (_ []*domain.Signal, err error) {
	defer observe("select_signals", time.Now(), &err)

	query := `
		SELECT signal_id, strategy_id, signal_date, price
		FROM signals
		WHERE strategy_id = $1
		ORDER BY signal_date ASC
	`

	rows, err := s.pool.Query(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("query signals by strategy: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// scanSignals scans multiple rows into a slice of Signal.
func scanSignals(rows pgx.Rows) ([]*domain.Signal, error) {
	var signals []*domain.Signal

	for rows.Next() {
		var sig domain.Signal
		if err := rows.Scan(&sig.SignalID, &sig.StrategyID, &sig.Date, &sig.Price); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		sig.Date = domain.Day(sig.Date)
		signals = append(signals, &sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signal rows: %w", err)
	}

	return signals, nil
}
