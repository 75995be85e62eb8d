package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"btc-signal-lab/internal/domain"
	"btc-signal-lab/internal/storage"
)

// StrategyAggregateStore is an in-memory implementation of storage.StrategyAggregateStore.
type StrategyAggregateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StrategyAggregate // keyed by composite key
}

// NewStrategyAggregateStore creates a new in-memory strategy aggregate store.
func NewStrategyAggregateStore() *StrategyAggregateStore {
	return &StrategyAggregateStore{
		data: make(map[string]*domain.StrategyAggregate),
	}
}

func aggregateKey(strategyID, exitRuleID string) string {
	return fmt.Sprintf("%s|%s", strategyID, exitRuleID)
}

// Insert adds a new aggregate. Returns ErrDuplicateKey if key exists.
func (s *StrategyAggregateStore) Insert(_ context.Context, a *domain.StrategyAggregate) error {
	if a == nil || a.StrategyID == "" || a.ExitRuleID == "" {
		return storage.ErrInvalidInput
	}

	key := aggregateKey(a.StrategyID, a.ExitRuleID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	aggCopy := *a
	s.data[key] = &aggCopy
	return nil
}

// Upsert stores an aggregate, replacing any existing one with the same key.
func (s *StrategyAggregateStore) Upsert(_ context.Context, a *domain.StrategyAggregate) error {
	if a == nil || a.StrategyID == "" || a.ExitRuleID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aggCopy := *a
	s.data[aggregateKey(a.StrategyID, a.ExitRuleID)] = &aggCopy
	return nil
}

// GetByKey retrieves an aggregate by its composite key. Returns ErrNotFound if not exists.
func (s *StrategyAggregateStore) GetByKey(_ context.Context, strategyID, exitRuleID string) (*domain.StrategyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[aggregateKey(strategyID, exitRuleID)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	aggCopy := *a
	return &aggCopy, nil
}

// GetAll retrieves all aggregates.
func (s *StrategyAggregateStore) GetAll(_ context.Context) ([]*domain.StrategyAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StrategyAggregate
	for _, a := range s.data {
		aggCopy := *a
		result = append(result, &aggCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StrategyID != result[j].StrategyID {
			return result[i].StrategyID < result[j].StrategyID
		}
		return result[i].ExitRuleID < result[j].ExitRuleID
	})

	return result, nil
}

var _ storage.StrategyAggregateStore = (*StrategyAggregateStore)(nil)
