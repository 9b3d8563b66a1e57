package memory

import (
	"context"
	"errors"
	"testing"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage"
)

func TestAlertStore_InsertAndUnread(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()

	alerts := []*domain.Alert{
		{AlertID: "a1", Severity: domain.AlertWarning, Title: "out of range", CreatedAt: 1000},
		{AlertID: "a2", Severity: domain.AlertError, Title: "venue call failed", CreatedAt: 2000},
		{AlertID: "a3", Severity: domain.AlertInfo, Title: "fees collected", CreatedAt: 3000, Read: true},
	}
	for _, a := range alerts {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert %s failed: %v", a.AlertID, err)
		}
	}

	unread, err := store.ListUnread(ctx)
	if err != nil {
		t.Fatalf("ListUnread failed: %v", err)
	}
	if len(unread) != 2 {
		t.Fatalf("Expected 2 unread alerts, got %d", len(unread))
	}
	if unread[0].AlertID != "a1" {
		t.Errorf("unread not ordered by created_at ASC: first is %s", unread[0].AlertID)
	}
}

func TestAlertStore_MarkRead(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.Alert{AlertID: "a1", CreatedAt: 1000}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := store.MarkRead(ctx, "a1"); err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}

	unread, _ := store.ListUnread(ctx)
	if len(unread) != 0 {
		t.Errorf("Expected 0 unread after MarkRead, got %d", len(unread))
	}

	if err := store.MarkRead(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAlertStore_GetRecentLimit(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()

	for i, id := range []string{"a1", "a2", "a3"} {
		a := &domain.Alert{AlertID: id, CreatedAt: int64(1000 * (i + 1))}
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	recent, err := store.GetRecent(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 alerts, got %d", len(recent))
	}
	if recent[0].AlertID != "a3" {
		t.Errorf("GetRecent not ordered DESC: first is %s", recent[0].AlertID)
	}
}
