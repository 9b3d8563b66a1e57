package memory

import (
	"context"
	"errors"
	"testing"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

func TestActionStore_InsertAndGetByPosition(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	newRange := &domain.BinRange{Lower: 8100, Upper: 8300}
	actions := []*domain.RebalanceAction{
		{
			ActionID:   "act2",
			PositionID: "pos1",
			Kind:       domain.ActionRebalance,
			OldRange:   domain.BinRange{Lower: 8000, Upper: 8200},
			NewRange:   newRange,
			Status:     domain.ActionSuccess,
			CreatedAt:  2000,
		},
		{
			ActionID:   "act1",
			PositionID: "pos1",
			Kind:       domain.ActionStopLoss,
			OldRange:   domain.BinRange{Lower: 8000, Upper: 8200},
			Status:     domain.ActionFailed,
			Error:      "venue timeout",
			CreatedAt:  1000,
		},
		{ActionID: "act3", PositionID: "pos2", Kind: domain.ActionRebalance, CreatedAt: 1500},
	}
	for _, a := range actions {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert %s failed: %v", a.ActionID, err)
		}
	}

	got, err := store.GetByPositionID(ctx, "pos1")
	if err != nil {
		t.Fatalf("GetByPositionID failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 actions for pos1, got %d", len(got))
	}
	if got[0].ActionID != "act1" || got[1].ActionID != "act2" {
		t.Errorf("actions not ordered ASC: %s, %s", got[0].ActionID, got[1].ActionID)
	}
	if got[1].NewRange == nil || got[1].NewRange.Lower != 8100 {
		t.Error("NewRange not preserved")
	}
}

func TestActionStore_DuplicateKey(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	a := &domain.RebalanceAction{ActionID: "act1", PositionID: "pos1", CreatedAt: 1000}
	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, a)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestActionStore_GetRecent(t *testing.T) {
	store := NewActionStore()
	ctx := context.Background()

	for i, id := range []string{"a1", "a2", "a3", "a4"} {
		a := &domain.RebalanceAction{ActionID: id, PositionID: "pos1", CreatedAt: int64(1000 * (i + 1))}
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	recent, err := store.GetRecent(ctx, 3)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Expected 3 actions, got %d", len(recent))
	}
	if recent[0].ActionID != "a4" || recent[2].ActionID != "a2" {
		t.Errorf("GetRecent not ordered DESC: %s, %s, %s",
			recent[0].ActionID, recent[1].ActionID, recent[2].ActionID)
	}
}

func TestStopLossConfigStore_UpsertGetDelete(t *testing.T) {
	store := NewStopLossConfigStore()
	ctx := context.Background()

	cfg := &domain.StopLossConfig{PositionID: "pos1", Enabled: true, LossPct: 15, MaxILPct: 10}
	if err := store.Upsert(ctx, cfg); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	cfg.LossPct = 20
	if err := store.Upsert(ctx, cfg); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := store.GetByPositionID(ctx, "pos1")
	if err != nil {
		t.Fatalf("GetByPositionID failed: %v", err)
	}
	if got.LossPct != 20 {
		t.Errorf("LossPct = %v, want 20 after upsert", got.LossPct)
	}

	if err := store.Delete(ctx, "pos1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.GetByPositionID(ctx, "pos1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, "pos1"); err != nil {
		t.Errorf("Second delete should be nil, got %v", err)
	}
}
