package memory

import (
	"context"
	"errors"
	"testing"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

func TestStopLossConfigStore_UpsertAndGet(t *testing.T) {
	store := NewStopLossConfigStore()
	ctx := context.Background()

	cfg := &domain.StopLossConfig{
		PositionID: "pos-1",
		Enabled:    true,
		LossPct:    10,
		MaxILPct:   5,
		CreatedAt:  1000,
		UpdatedAt:  1000,
	}
	if err := store.Upsert(ctx, cfg); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetByPositionID(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetByPositionID failed: %v", err)
	}
	if got.LossPct != 10 || got.MaxILPct != 5 || !got.Enabled {
		t.Errorf("Unexpected config: %+v", got)
	}

	// Mutating the returned copy must not affect the stored config.
	got.LossPct = 99
	again, _ := store.GetByPositionID(ctx, "pos-1")
	if again.LossPct != 10 {
		t.Errorf("Store returned a shared pointer, LossPct = %v", again.LossPct)
	}
}

func TestStopLossConfigStore_UpsertReplaces(t *testing.T) {
	store := NewStopLossConfigStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, &domain.StopLossConfig{PositionID: "pos-1", Enabled: true, LossPct: 10, MaxILPct: 5}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, &domain.StopLossConfig{PositionID: "pos-1", Enabled: false, LossPct: 20, MaxILPct: 8, UpdatedAt: 2000}); err != nil {
		t.Fatalf("Second Upsert failed: %v", err)
	}

	got, err := store.GetByPositionID(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetByPositionID failed: %v", err)
	}
	if got.LossPct != 20 || got.Enabled {
		t.Errorf("Upsert did not replace config: %+v", got)
	}
}

func TestStopLossConfigStore_GetMissing(t *testing.T) {
	store := NewStopLossConfigStore()

	_, err := store.GetByPositionID(context.Background(), "ghost")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStopLossConfigStore_UpsertInvalid(t *testing.T) {
	store := NewStopLossConfigStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil config, got %v", err)
	}
	if err := store.Upsert(ctx, &domain.StopLossConfig{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty position ID, got %v", err)
	}

	// Malformed thresholds never reach evaluation.
	for _, cfg := range []*domain.StopLossConfig{
		{PositionID: "pos-1", LossPct: -5, MaxILPct: 10},
		{PositionID: "pos-1", LossPct: 10, MaxILPct: 0},
		{PositionID: "pos-1", LossPct: 150, MaxILPct: 10},
	} {
		if err := store.Upsert(ctx, cfg); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("Upsert %+v: expected ErrInvalidInput, got %v", cfg, err)
		}
	}
	if _, err := store.GetByPositionID(ctx, "pos-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after rejected upserts, got %v", err)
	}
}

func TestStopLossConfigStore_Delete(t *testing.T) {
	store := NewStopLossConfigStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, &domain.StopLossConfig{PositionID: "pos-1", LossPct: 10, MaxILPct: 5}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := store.Delete(ctx, "pos-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.GetByPositionID(ctx, "pos-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after Delete, got %v", err)
	}

	// Deleting a missing config is not an error.
	if err := store.Delete(ctx, "ghost"); err != nil {
		t.Errorf("Delete of missing config returned %v", err)
	}
}
