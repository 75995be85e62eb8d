package clickhouse

import (
	"context"
	"fmt"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// DailyBarStore implements storage.DailyBarStore using ClickHouse.
type DailyBarStore struct {
	conn *Conn
}

// NewDailyBarStore creates a new DailyBarStore.
func NewDailyBarStore(conn *Conn) *DailyBarStore {
	return &DailyBarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.DailyBarStore = (*DailyBarStore)(nil)

// InsertBulk adds multiple bars. Fails entire batch on duplicate date.
func (s *DailyBarStore) InsertBulk(ctx context.Context, bars []*domain.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	dates := make([]time.Time, 0, len(bars))
	seen := make(map[string]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := domain.DayKey(b.Date)
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
		dates = append(dates, b.Date)
	}

	// Check for duplicates against existing DB rows
	existing, err := existingDates(ctx, s.conn, "daily_bars", dates)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for key := range seen {
		if _, exists := existing[key]; exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO daily_bars (
			date, open, high, low, close, volume, change_pct
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			domain.Day(b.Date), b.Open, b.High, b.Low, b.Close, b.Volume, b.ChangePct,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetAll retrieves every bar, ordered by date ASC.
func (s *DailyBarStore) GetAll(ctx context.Context) ([]*domain.DailyBar, error) {
	query := `
		SELECT date, open, high, low, close, volume, change_pct
		FROM daily_bars
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all bars: %w", err)
	}
	defer rows.Close()

	return scanDailyBars(rows)
}

// GetByDateRange retrieves bars within [from, to] (inclusive), ordered by date ASC.
func (s *DailyBarStore) GetByDateRange(ctx context.Context, from, to time.Time) ([]*domain.DailyBar, error) {
	query := `
		SELECT date, open, high, low, close, volume, change_pct
		FROM daily_bars
		WHERE date >= toDate(?) AND date <= toDate(?)
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, domain.DayKey(from), domain.DayKey(to))
	if err != nil {
		return nil, fmt.Errorf("query by date range: %w", err)
	}
	defer rows.Close()

	return scanDailyBars(rows)
}

// scanDailyBars scans multiple rows.
func scanDailyBars(rows chRows) ([]*domain.DailyBar, error) {
	var bars []*domain.DailyBar

	for rows.Next() {
		var b domain.DailyBar
		err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.ChangePct)
		if err != nil {
			return nil, fmt.Errorf("scan daily bar row: %w", err)
		}
		b.Date = domain.Day(b.Date)
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily bar rows: %w", err)
	}

	return bars, nil
}

// existingDates returns the day keys of table rows between the earliest and
// latest of dates.
func existingDates(ctx context.Context, conn *Conn, table string, dates []time.Time) (map[string]struct{}, error) {
	lo, hi := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}

	query := fmt.Sprintf(`SELECT date FROM %s WHERE date >= toDate(?) AND date <= toDate(?)`, table)
	rows, err := conn.Query(ctx, query, domain.DayKey(lo), domain.DayKey(hi))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[string]struct{})
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		existing[domain.DayKey(d)] = struct{}{}
	}
	return existing, rows.Err()
}
