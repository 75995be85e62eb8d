package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// FeatureStore is an in-memory implementation of storage.FeatureStore.
type FeatureStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FeatureRecord // keyed by YYYY-MM-DD
}

// NewFeatureStore creates a new in-memory feature store.
func NewFeatureStore() *FeatureStore {
	return &FeatureStore{
		data: make(map[string]*domain.FeatureRecord),
	}
}

// InsertBulk adds multiple records. Fails entire batch on duplicate.
func (s *FeatureStore) InsertBulk(_ context.Context, records []*domain.FeatureRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))

	for _, r := range records {
		if r == nil || r.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := domain.DayKey(r.Date)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range records {
		recCopy := *r
		recCopy.Date = domain.Day(r.Date)
		s.data[domain.DayKey(r.Date)] = &recCopy
	}

	return nil
}

// GetAll retrieves all records, ordered by date ASC.
func (s *FeatureStore) GetAll(_ context.Context) ([]*domain.FeatureRecord, error) {
	return s.collect(func(*domain.FeatureRecord) bool { return true }), nil
}

// GetByDateRange retrieves records within [from, to] (inclusive).
func (s *FeatureStore) GetByDateRange(_ context.Context, from, to time.Time) ([]*domain.FeatureRecord, error) {
	from, to = domain.Day(from), domain.Day(to)
	return s.collect(func(r *domain.FeatureRecord) bool {
		return !r.Date.Before(from) && !r.Date.After(to)
	}), nil
}

func (s *FeatureStore) collect(keep func(*domain.FeatureRecord) bool) []*domain.FeatureRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeatureRecord
	for _, r := range s.data {
		if keep(r) {
			recCopy := *r
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result
}

var _ storage.FeatureStore = (*FeatureStore)(nil)
