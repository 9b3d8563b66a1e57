package memory

import (
	"context"
	"errors"
	"testing"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

func TestPositionStore_InsertAndGet(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	pos := &domain.Position{
		PositionID:   "pos1",
		Pool:         "poolA",
		Owner:        "wallet1",
		LowerBin:     8000,
		UpperBin:     8200,
		AmountX:      1_000_000,
		AmountY:      2_000_000,
		DepositPrice: 1.5,
		State:        domain.StateInRange,
		CreatedAt:    1704067200000,
	}

	if err := store.Insert(ctx, pos); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "pos1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.LowerBin != 8000 || got.UpperBin != 8200 {
		t.Errorf("range mismatch: got [%d, %d]", got.LowerBin, got.UpperBin)
	}
	if got.State != domain.StateInRange {
		t.Errorf("State = %s, want %s", got.State, domain.StateInRange)
	}
}

func TestPositionStore_DuplicateKey(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	pos := &domain.Position{PositionID: "pos1", Pool: "poolA", LowerBin: 1, UpperBin: 2}

	if err := store.Insert(ctx, pos); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, pos)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPositionStore_UpdateMutatesStored(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	pos := &domain.Position{PositionID: "pos1", Pool: "poolA", LowerBin: 100, UpperBin: 200}
	if err := store.Insert(ctx, pos); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	pos.LowerBin = 150
	pos.UpperBin = 250
	pos.State = domain.StateRebalancing
	if err := store.Update(ctx, pos); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetByID(ctx, "pos1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.LowerBin != 150 || got.UpperBin != 250 {
		t.Errorf("range not updated: got [%d, %d]", got.LowerBin, got.UpperBin)
	}
}

func TestPositionStore_UpdateMissing(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	err := store.Update(ctx, &domain.Position{PositionID: "ghost", Pool: "poolA", LowerBin: 1, UpperBin: 2})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPositionStore_RejectsInvalidRange(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	// lower >= upper never reaches the evaluation loop.
	inverted := &domain.Position{PositionID: "pos1", Pool: "poolA", LowerBin: 9000, UpperBin: 8000}
	if err := store.Insert(ctx, inverted); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Insert inverted range: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Position{PositionID: "pos1", Pool: "poolA", LowerBin: 100, UpperBin: 100}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Insert degenerate range: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Position{PositionID: "pos1", LowerBin: 1, UpperBin: 2}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Insert without pool: expected ErrInvalidInput, got %v", err)
	}

	// Nothing was stored.
	if _, err := store.GetByID(ctx, "pos1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after rejected inserts, got %v", err)
	}

	// Update enforces the same bounds.
	valid := &domain.Position{PositionID: "pos1", Pool: "poolA", LowerBin: 8000, UpperBin: 8200}
	if err := store.Insert(ctx, valid); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	valid.LowerBin, valid.UpperBin = 8200, 8000
	if err := store.Update(ctx, valid); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Update inverted range: expected ErrInvalidInput, got %v", err)
	}
	got, err := store.GetByID(ctx, "pos1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.LowerBin != 8000 || got.UpperBin != 8200 {
		t.Errorf("rejected update mutated store: got [%d, %d]", got.LowerBin, got.UpperBin)
	}
}

func TestPositionStore_Delete(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	pos := &domain.Position{PositionID: "pos1", Pool: "poolA", LowerBin: 1, UpperBin: 2}
	if err := store.Insert(ctx, pos); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.Delete(ctx, "pos1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, err := store.GetByID(ctx, "pos1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	if err := store.Delete(ctx, "pos1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPositionStore_ListOrdering(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	positions := []*domain.Position{
		{PositionID: "p3", Pool: "poolA", LowerBin: 1, UpperBin: 2, CreatedAt: 3000},
		{PositionID: "p1", Pool: "poolA", LowerBin: 1, UpperBin: 2, CreatedAt: 1000},
		{PositionID: "p2", Pool: "poolB", LowerBin: 1, UpperBin: 2, CreatedAt: 2000},
	}
	for _, p := range positions {
		if err := store.Insert(ctx, p); err != nil {
			t.Fatalf("Insert %s failed: %v", p.PositionID, err)
		}
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 positions, got %d", len(all))
	}
	if all[0].PositionID != "p1" || all[2].PositionID != "p3" {
		t.Errorf("List not ordered by created_at: %s, %s, %s",
			all[0].PositionID, all[1].PositionID, all[2].PositionID)
	}

	byPool, err := store.ListByPool(ctx, "poolA")
	if err != nil {
		t.Fatalf("ListByPool failed: %v", err)
	}
	if len(byPool) != 2 {
		t.Errorf("Expected 2 positions on poolA, got %d", len(byPool))
	}
}

func TestPositionStore_ReturnsCopies(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	pos := &domain.Position{PositionID: "pos1", Pool: "poolA", LowerBin: 100, UpperBin: 200}
	if err := store.Insert(ctx, pos); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, _ := store.GetByID(ctx, "pos1")
	got.LowerBin = -1

	again, _ := store.GetByID(ctx, "pos1")
	if again.LowerBin != 100 {
		t.Error("mutation through returned pointer leaked into store")
	}
}
