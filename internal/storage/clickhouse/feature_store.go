package clickhouse

import (
	"context"
	"fmt"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// FeatureStore implements storage.FeatureStore using ClickHouse.
// Missing feature values are stored as NULL.
type FeatureStore struct {
	conn *Conn
}

// NewFeatureStore creates a new FeatureStore.
func NewFeatureStore(conn *Conn) *FeatureStore {
	return &FeatureStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FeatureStore = (*FeatureStore)(nil)

// InsertBulk adds multiple records. Fails entire batch on duplicate date.
func (s *FeatureStore) InsertBulk(ctx context.Context, records []*domain.FeatureRecord) error {
	if len(records) == 0 {
		return nil
	}

	dates := make([]time.Time, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := domain.DayKey(r.Date)
		if _, exists := seen[key]; exists {
			return storage.ErrDuplicateKey
		}
		seen[key] = struct{}{}
		dates = append(dates, r.Date)
	}

	existing, err := existingDates(ctx, s.conn, "daily_features", dates)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for key := range seen {
		if _, exists := existing[key]; exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO daily_features (
			date, sentiment_balance, unique_social_volume_1h,
			miners_to_exchanges_flow, whale_count_100k, whale_count_1m
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			domain.Day(r.Date), r.SentimentBalance, r.UniqueSocialVolume1h,
			r.MinersToExchangesFlow, r.WhaleCount100k, r.WhaleCount1m,
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

// GetAll retrieves every record, ordered by date ASC.
func (s *FeatureStore) GetAll(ctx context.Context) ([]*domain.FeatureRecord, error) {
	query := `
		SELECT date, sentiment_balance, unique_social_volume_1h,
			miners_to_exchanges_flow, whale_count_100k, whale_count_1m
		FROM daily_features
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all features: %w", err)
	}
	defer rows.Close()

	return scanFeatures(rows)
}

// GetByDateRange retrieves records within [from, to] (inclusive), ordered by date ASC.
func (s *FeatureStore) GetByDateRange(ctx context.Context, from, to time.Time) ([]*domain.FeatureRecord, error) {
	query := `
		SELECT date, sentiment_balance, unique_social_volume_1h,
			miners_to_exchanges_flow, whale_count_100k, whale_count_1m
		FROM daily_features
		WHERE date >= toDate(?) AND date <= toDate(?)
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, domain.DayKey(from), domain.DayKey(to))
	if err != nil {
		return nil, fmt.Errorf("query by date range: %w", err)
	}
	defer rows.Close()

	return scanFeatures(rows)
}

func scanFeatures(rows chRows) ([]*domain.FeatureRecord, error) {
	var records []*domain.FeatureRecord

	for rows.Next() {
		var r domain.FeatureRecord
		err := rows.Scan(
			&r.Date, &r.SentimentBalance, &r.UniqueSocialVolume1h,
			&r.MinersToExchangesFlow, &r.WhaleCount100k, &r.WhaleCount1m,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		r.Date = domain.Day(r.Date)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}

	return records, nil
}
