package memory

import (
	"context"
	"fmt"
	"sync"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// StopLossConfigStore is an in-memory implementation of storage.StopLossConfigStore.
type StopLossConfigStore struct {
	mu   sync.RWMutex
	data map[string]*domain.StopLossConfig // keyed by position ID
}

// NewStopLossConfigStore creates a new in-memory stop-loss config store.
func NewStopLossConfigStore() *StopLossConfigStore {
	return &StopLossConfigStore{
		data: make(map[string]*domain.StopLossConfig),
	}
}

// Compile-time interface check.
var _ storage.StopLossConfigStore = (*StopLossConfigStore)(nil)

// Upsert creates or replaces the config for its position. Malformed
// thresholds are rejected with ErrInvalidInput.
func (s *StopLossConfigStore) Upsert(_ context.Context, c *domain.StopLossConfig) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfgCopy := *c
	s.data[c.PositionID] = &cfgCopy
	return nil
}

// GetByPositionID retrieves the config guarding a position.
func (s *StopLossConfigStore) GetByPositionID(_ context.Context, positionID string) (*domain.StopLossConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.data[positionID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cfgCopy := *c
	return &cfgCopy, nil
}

// Delete removes the config for a position. Missing configs are ignored.
func (s *StopLossConfigStore) Delete(_ context.Context, positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, positionID)
	return nil
}
