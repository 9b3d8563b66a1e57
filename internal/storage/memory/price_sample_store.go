package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceSample // keyed by pool|timestamp
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{
		data: make(map[string]*domain.PriceSample),
	}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

func sampleKey(pool string, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", pool, timestampMs)
}

// InsertBulk adds multiple samples. Fails entire batch on any duplicate.
func (s *PriceSampleStore) InsertBulk(_ context.Context, samples []*domain.PriceSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(samples))

	for _, p := range samples {
		if p == nil || p.Pool == "" {
			return storage.ErrInvalidInput
		}
		key := sampleKey(p.Pool, p.TimestampMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range samples {
		sampleCopy := *p
		s.data[sampleKey(p.Pool, p.TimestampMs)] = &sampleCopy
	}

	return nil
}

// GetByTimeRange retrieves samples for a pool within [start, end] (inclusive).
func (s *PriceSampleStore) GetByTimeRange(_ context.Context, pool string, start, end int64) ([]*domain.PriceSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PriceSample
	for _, p := range s.data {
		if p.Pool == pool && p.TimestampMs >= start && p.TimestampMs <= end {
			sampleCopy := *p
			result = append(result, &sampleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}
