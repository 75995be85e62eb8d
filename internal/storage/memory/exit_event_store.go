package memory

import (
	"context"
	"sort"
	"sync"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// ExitEventStore is an in-memory implementation of storage.ExitEventStore.
type ExitEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExitEvent // keyed by exit_id
}

// NewExitEventStore creates a new in-memory exit event store.
func NewExitEventStore() *ExitEventStore {
	return &ExitEventStore{
		data: make(map[string]*domain.ExitEvent),
	}
}

// InsertBulk adds multiple exits atomically. Fails entire batch on any duplicate.
func (s *ExitEventStore) InsertBulk(_ context.Context, exits []*domain.ExitEvent) error {
	if len(exits) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(exits))

	for _, e := range exits {
		if e == nil || e.ExitID == "" || e.SignalID == "" || !e.Reason.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.ExitID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.ExitID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.ExitID] = struct{}{}
	}

	for _, e := range exits {
		exitCopy := *e
		s.data[e.ExitID] = &exitCopy
	}

	return nil
}

// GetBySignalID retrieves the exit of a signal under a rule. Returns ErrNotFound if not exists.
func (s *ExitEventStore) GetBySignalID(_ context.Context, signalID, exitRuleID string) (*domain.ExitEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data {
		if e.SignalID == signalID && e.ExitRuleID == exitRuleID {
			exitCopy := *e
			return &exitCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByExitRule retrieves all exits for a rule, ordered by signal date ASC.
func (s *ExitEventStore) GetByExitRule(_ context.Context, exitRuleID string) ([]*domain.ExitEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExitEvent
	for _, e := range s.data {
		if e.ExitRuleID == exitRuleID {
			exitCopy := *e
			result = append(result, &exitCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].SignalDate.Before(result[j].SignalDate)
	})

	return result, nil
}

var _ storage.ExitEventStore = (*ExitEventStore)(nil)
