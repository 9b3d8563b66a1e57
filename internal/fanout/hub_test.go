package fanout

import (
	"context"
	"testing"
	"time"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/storage/memory"
)

func newTestHub(t *testing.T, opts Options) (*Hub, *memory.PositionStore, *memory.AlertStore) {
	t.Helper()
	positions := memory.NewPositionStore()
	alerts := memory.NewAlertStore()
	opts.Positions = positions
	opts.Alerts = alerts
	return New(opts), positions, alerts
}

func recvEvent(t *testing.T, sub *Subscription) *domain.Event {
	t.Helper()
	select {
	case payload, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		e, err := domain.DecodeEvent(payload)
		if err != nil {
			t.Fatalf("DecodeEvent failed: %v", err)
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestHub_SnapshotReplayOnSubscribe(t *testing.T) {
	hub, positions, _ := newTestHub(t, Options{})
	ctx := context.Background()

	for _, p := range []*domain.Position{
		{PositionID: "p1", Pool: "poolA", LowerBin: 1, UpperBin: 2, CreatedAt: 1000},
		{PositionID: "p2", Pool: "poolA", LowerBin: 3, UpperBin: 4, CreatedAt: 2000},
	} {
		if err := positions.Insert(ctx, p); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	sub, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	// Full position snapshot arrives before any live event.
	first := recvEvent(t, sub)
	second := recvEvent(t, sub)
	if first.Type != domain.EventPositionUpdate || second.Type != domain.EventPositionUpdate {
		t.Fatalf("snapshot types = %s, %s, want position_update", first.Type, second.Type)
	}
	if first.Position.PositionID != "p1" || second.Position.PositionID != "p2" {
		t.Errorf("snapshot order = %s, %s", first.Position.PositionID, second.Position.PositionID)
	}

	hub.Broadcast(&domain.Event{
		Type:        domain.EventPriceUpdate,
		TimestampMs: 3000,
		Price:       &domain.PriceUpdate{Pool: "poolA", Price: 1.5},
	})

	live := recvEvent(t, sub)
	if live.Type != domain.EventPriceUpdate {
		t.Errorf("live event type = %s, want price_update", live.Type)
	}
}

func TestHub_BroadcastReachesAllSubscribers(t *testing.T) {
	hub, _, _ := newTestHub(t, Options{})
	ctx := context.Background()

	subA, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer subA.Close()
	subB, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer subB.Close()

	hub.Broadcast(&domain.Event{
		Type:        domain.EventAlert,
		TimestampMs: 1000,
		Alert:       &domain.Alert{AlertID: "a1", Severity: domain.AlertInfo},
	})

	for _, sub := range []*Subscription{subA, subB} {
		e := recvEvent(t, sub)
		if e.Type != domain.EventAlert || e.Alert.AlertID != "a1" {
			t.Errorf("subscriber got %+v, want alert a1", e)
		}
	}
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	hub, _, _ := newTestHub(t, Options{SendBuffer: 1})
	ctx := context.Background()

	slow, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	healthy, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer healthy.Close()

	ev := &domain.Event{
		Type:        domain.EventPriceUpdate,
		TimestampMs: 1000,
		Price:       &domain.PriceUpdate{Pool: "poolA", Price: 1},
	}

	// The healthy subscriber keeps draining; the slow one never does, so
	// its one-slot queue overflows on the second broadcast and it is
	// dropped without blocking delivery to the healthy one.
	for i := 0; i < 3; i++ {
		hub.Broadcast(ev)
		if e := recvEvent(t, healthy); e.Type != domain.EventPriceUpdate {
			t.Fatalf("healthy got %s, want price_update", e.Type)
		}
	}

	if hub.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount = %d, want 1 after drop", hub.SubscriberCount())
	}

	// Dropped subscription's channel is closed.
	for {
		if _, ok := <-slow.C; !ok {
			break
		}
	}
}

func TestHub_UnsubscribeRemovesFromSet(t *testing.T) {
	hub, _, _ := newTestHub(t, Options{})
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", hub.SubscriberCount())
	}

	sub.Close()
	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount = %d, want 0 after Close", hub.SubscriberCount())
	}

	// Closing twice is safe.
	sub.Close()
}

func TestHub_HeartbeatPushesPositionsAndUnreadAlerts(t *testing.T) {
	hub, positions, alerts := newTestHub(t, Options{HeartbeatInterval: 20 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := positions.Insert(ctx, &domain.Position{PositionID: "p1", Pool: "poolA", LowerBin: 1, UpperBin: 2, CreatedAt: 1000}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := alerts.Insert(ctx, &domain.Alert{AlertID: "a1", CreatedAt: 1000}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	sub, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	// Drain the snapshot replay first.
	if e := recvEvent(t, sub); e.Type != domain.EventPositionUpdate {
		t.Fatalf("snapshot type = %s", e.Type)
	}

	go hub.Run(ctx)

	gotPosition, gotAlert := false, false
	deadline := time.After(2 * time.Second)
	for !(gotPosition && gotAlert) {
		select {
		case payload := <-sub.C:
			e, err := domain.DecodeEvent(payload)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			switch e.Type {
			case domain.EventPositionUpdate:
				gotPosition = true
			case domain.EventAlert:
				gotAlert = true
			}
		case <-deadline:
			t.Fatalf("heartbeat incomplete: position=%v alert=%v", gotPosition, gotAlert)
		}
	}
}

type captureNotifier struct {
	events chan *domain.Event
}

func (n *captureNotifier) Notify(_ context.Context, e *domain.Event) error {
	n.events <- e
	return nil
}

func TestHub_NotifierReceivesAlertsOnly(t *testing.T) {
	notifier := &captureNotifier{events: make(chan *domain.Event, 4)}
	hub, _, _ := newTestHub(t, Options{Notifier: notifier})

	hub.Broadcast(&domain.Event{
		Type:        domain.EventPriceUpdate,
		TimestampMs: 1,
		Price:       &domain.PriceUpdate{Pool: "poolA"},
	})
	hub.Broadcast(&domain.Event{
		Type:        domain.EventAlert,
		TimestampMs: 2,
		Alert:       &domain.Alert{AlertID: "a1"},
	})

	select {
	case e := <-notifier.events:
		if e.Type != domain.EventAlert {
			t.Errorf("notifier got %s, want alert", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("notifier never called")
	}

	select {
	case e := <-notifier.events:
		t.Errorf("notifier got unexpected extra event %s", e.Type)
	default:
	}
}
