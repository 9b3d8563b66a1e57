package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

func TestStopLossConfigStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStopLossConfigStore(pool)
	ctx := context.Background()

	config := &domain.StopLossConfig{
		PositionID: "pos-001",
		Enabled:    true,
		LossPct:    20,
		MaxILPct:   15,
		CreatedAt:  1700000000000,
		UpdatedAt:  1700000000000,
	}

	require.NoError(t, store.Upsert(ctx, config))

	retrieved, err := store.GetByPositionID(ctx, "pos-001")
	require.NoError(t, err)
	assert.Equal(t, config.PositionID, retrieved.PositionID)
	assert.True(t, retrieved.Enabled)
	assert.Equal(t, 20.0, retrieved.LossPct)
	assert.Equal(t, 15.0, retrieved.MaxILPct)
}

func TestStopLossConfigStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStopLossConfigStore(pool)
	ctx := context.Background()

	config := &domain.StopLossConfig{
		PositionID: "pos-001",
		Enabled:    true,
		LossPct:    20,
		MaxILPct:   15,
		CreatedAt:  1700000000000,
		UpdatedAt:  1700000000000,
	}
	require.NoError(t, store.Upsert(ctx, config))

	config.Enabled = false
	config.LossPct = 30
	config.UpdatedAt = 1700000060000
	require.NoError(t, store.Upsert(ctx, config))

	retrieved, err := store.GetByPositionID(ctx, "pos-001")
	require.NoError(t, err)
	assert.False(t, retrieved.Enabled)
	assert.Equal(t, 30.0, retrieved.LossPct)
	assert.Equal(t, int64(1700000000000), retrieved.CreatedAt)
	assert.Equal(t, int64(1700000060000), retrieved.UpdatedAt)
}

func TestStopLossConfigStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStopLossConfigStore(pool)

	_, err := store.GetByPositionID(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStopLossConfigStore_DeleteMissingIsNoError(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStopLossConfigStore(pool)
	ctx := context.Background()

	// Deleting a missing config must not fail: configs go away together
	// with their position.
	assert.NoError(t, store.Delete(ctx, "nonexistent"))

	config := &domain.StopLossConfig{
		PositionID: "pos-del",
		Enabled:    true,
		LossPct:    20,
		MaxILPct:   15,
		CreatedAt:  1700000000000,
		UpdatedAt:  1700000000000,
	}
	require.NoError(t, store.Upsert(ctx, config))
	require.NoError(t, store.Delete(ctx, "pos-del"))

	_, err := store.GetByPositionID(ctx, "pos-del")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStopLossConfigStore_RejectsInvalidThresholds(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStopLossConfigStore(pool)
	ctx := context.Background()

	for _, config := range []*domain.StopLossConfig{
		{PositionID: "pos-001", LossPct: -5, MaxILPct: 10},
		{PositionID: "pos-001", LossPct: 10, MaxILPct: 0},
		{PositionID: "pos-001", LossPct: 101, MaxILPct: 10},
		{PositionID: "", LossPct: 10, MaxILPct: 10},
	} {
		assert.ErrorIs(t, store.Upsert(ctx, config), storage.ErrInvalidInput)
	}

	_, err := store.GetByPositionID(ctx, "pos-001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
