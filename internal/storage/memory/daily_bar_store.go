package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// DailyBarStore is an in-memory implementation of storage.DailyBarStore.
type DailyBarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DailyBar // keyed by YYYY-MM-DD
}

// NewDailyBarStore creates a new in-memory bar store.
func NewDailyBarStore() *DailyBarStore {
	return &DailyBarStore{
		data: make(map[string]*domain.DailyBar),
	}
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate.
func (s *DailyBarStore) InsertBulk(_ context.Context, bars []*domain.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(bars))

	// First pass: check for duplicates (existing + intra-batch)
	for _, b := range bars {
		if b == nil || b.Date.IsZero() {
			return storage.ErrInvalidInput
		}
		key := domain.DayKey(b.Date)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, b := range bars {
		barCopy := *b
		barCopy.Date = domain.Day(b.Date)
		s.data[domain.DayKey(b.Date)] = &barCopy
	}

	return nil
}

// GetAll retrieves all bars, ordered by date ASC.
func (s *DailyBarStore) GetAll(_ context.Context) ([]*domain.DailyBar, error) {
	return s.collect(func(*domain.DailyBar) bool { return true }), nil
}

// GetByDateRange retrieves bars within [from, to] (inclusive).
func (s *DailyBarStore) GetByDateRange(_ context.Context, from, to time.Time) ([]*domain.DailyBar, error) {
	from, to = domain.Day(from), domain.Day(to)
	return s.collect(func(b *domain.DailyBar) bool {
		return !b.Date.Before(from) && !b.Date.After(to)
	}), nil
}

func (s *DailyBarStore) collect(keep func(*domain.DailyBar) bool) []*domain.DailyBar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DailyBar
	for _, b := range s.data {
		if keep(b) {
			barCopy := *b
			result = append(result, &barCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result
}

var _ storage.DailyBarStore = (*DailyBarStore)(nil)
