package memory

import (
	"context"
	"sort"
	"sync"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Alert // keyed by alert ID
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		data: make(map[string]*domain.Alert),
	}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

// Insert appends an alert. Returns ErrDuplicateKey if alert_id exists.
func (s *AlertStore) Insert(_ context.Context, a *domain.Alert) error {
	if a == nil || a.AlertID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.AlertID]; exists {
		return storage.ErrDuplicateKey
	}

	alertCopy := *a
	s.data[a.AlertID] = &alertCopy
	return nil
}

// ListUnread retrieves all unread alerts, ordered by created_at ASC.
func (s *AlertStore) ListUnread(_ context.Context) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Alert
	for _, a := range s.data {
		if !a.Read {
			alertCopy := *a
			result = append(result, &alertCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].AlertID < result[j].AlertID
	})

	return result, nil
}

// GetRecent retrieves the latest alerts, ordered by created_at DESC.
func (s *AlertStore) GetRecent(_ context.Context, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Alert, 0, len(s.data))
	for _, a := range s.data {
		alertCopy := *a
		result = append(result, &alertCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].AlertID > result[j].AlertID
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// MarkRead sets the read flag on an alert. Returns ErrNotFound if not exists.
func (s *AlertStore) MarkRead(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.data[alertID]
	if !ok {
		return storage.ErrNotFound
	}

	a.Read = true
	return nil
}
