package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position ID
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if position_id exists
// and ErrInvalidInput for malformed positions.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; exists {
		return storage.ErrDuplicateKey
	}

	posCopy := *p
	s.data[p.PositionID] = &posCopy
	return nil
}

// GetByID retrieves a position by its ID. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, positionID string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[positionID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	posCopy := *p
	return &posCopy, nil
}

// Update replaces a stored position. Returns ErrNotFound if not exists
// and ErrInvalidInput for malformed positions.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; !exists {
		return storage.ErrNotFound
	}

	posCopy := *p
	s.data[p.PositionID] = &posCopy
	return nil
}

// Delete removes a position. Returns ErrNotFound if not exists.
func (s *PositionStore) Delete(_ context.Context, positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[positionID]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, positionID)
	return nil
}

// List retrieves all positions, ordered by created_at ASC.
func (s *PositionStore) List(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Position, 0, len(s.data))
	for _, p := range s.data {
		posCopy := *p
		result = append(result, &posCopy)
	}

	sortPositions(result)
	return result, nil
}

// ListByPool retrieves all positions on a pool, ordered by created_at ASC.
func (s *PositionStore) ListByPool(_ context.Context, pool string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.Pool == pool {
			posCopy := *p
			result = append(result, &posCopy)
		}
	}

	sortPositions(result)
	return result, nil
}

func sortPositions(positions []*domain.Position) {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].CreatedAt != positions[j].CreatedAt {
			return positions[i].CreatedAt < positions[j].CreatedAt
		}
		return positions[i].PositionID < positions[j].PositionID
	})
}
