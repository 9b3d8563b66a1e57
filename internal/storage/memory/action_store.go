package memory

import (
	"context"
	"sort"
	"sync"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// ActionStore is an in-memory implementation of storage.ActionStore.
type ActionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RebalanceAction // keyed by action ID
}

// NewActionStore creates a new in-memory action store.
func NewActionStore() *ActionStore {
	return &ActionStore{
		data: make(map[string]*domain.RebalanceAction),
	}
}

// Compile-time interface check.
var _ storage.ActionStore = (*ActionStore)(nil)

// Insert appends an action record. Returns ErrDuplicateKey if action_id exists.
func (s *ActionStore) Insert(_ context.Context, a *domain.RebalanceAction) error {
	if a == nil || a.ActionID == "" || a.PositionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.ActionID]; exists {
		return storage.ErrDuplicateKey
	}

	actCopy := *a
	s.data[a.ActionID] = &actCopy
	return nil
}

// GetByPositionID retrieves all actions for a position, ordered by created_at ASC.
func (s *ActionStore) GetByPositionID(_ context.Context, positionID string) ([]*domain.RebalanceAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RebalanceAction
	for _, a := range s.data {
		if a.PositionID == positionID {
			actCopy := *a
			result = append(result, &actCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ActionID < result[j].ActionID
	})

	return result, nil
}

// GetRecent retrieves the latest actions, ordered by created_at DESC.
func (s *ActionStore) GetRecent(_ context.Context, limit int) ([]*domain.RebalanceAction, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RebalanceAction, 0, len(s.data))
	for _, a := range s.data {
		actCopy := *a
		result = append(result, &actCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ActionID > result[j].ActionID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
