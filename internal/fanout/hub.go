// Package fanout broadcasts engine events to connected subscribers with
// best-effort, per-subscriber delivery. A slow or dead subscriber is
// dropped from the active set instead of blocking the others.
package fanout

import (
	"context"
	"log"
	"sync"
	"time"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/observability"
	"dlmm-rebalancer/internal/storage"
)

// Default fanout parameters.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSendBuffer        = 64
)

// Notifier receives alert and rebalance events for out-of-band delivery
// (chat bot). Delivery is best-effort; errors are logged, never retried.
type Notifier interface {
	Notify(ctx context.Context, e *domain.Event) error
}

// Subscription is one connected subscriber's event stream. The channel is
// closed when the subscriber is dropped or the hub shuts down.
type Subscription struct {
	C chan []byte

	hub *Hub
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub is the notification fanout. Subscriber connect/disconnect may happen
// concurrently with broadcast; the subscriber set is guarded by a mutex.
type Hub struct {
	positions storage.PositionStore
	alerts    storage.AlertStore
	notifier  Notifier
	logger    *log.Logger

	heartbeat  time.Duration
	sendBuffer int
	now        func() time.Time

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// Options configures a Hub.
type Options struct {
	// Positions backs the snapshot replay on connect and the heartbeat.
	Positions storage.PositionStore
	// Alerts backs the unread-alert heartbeat.
	Alerts storage.AlertStore
	// Notifier receives alert/rebalance events; nil disables it.
	Notifier Notifier
	Logger   *log.Logger

	// HeartbeatInterval is independent of the scheduler's evaluation
	// interval. Default: 30s.
	HeartbeatInterval time.Duration
	// SendBuffer is the per-subscriber queue size. Default: 64.
	SendBuffer int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates a Hub.
func New(opts Options) *Hub {
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Hub{
		positions:  opts.Positions,
		alerts:     opts.Alerts,
		notifier:   opts.Notifier,
		logger:     logger,
		heartbeat:  heartbeat,
		sendBuffer: buffer,
		now:        now,
		subs:       make(map[*Subscription]struct{}),
	}
}

// Subscribe registers a new subscriber. The current snapshot of all
// positions is queued as position_update events before the subscription
// joins the live set, so a late joiner sees full state without waiting for
// the next cycle.
func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	snapshot, err := h.snapshotEvents(ctx)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		C:   make(chan []byte, h.sendBuffer+len(snapshot)),
		hub: h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Snapshot goes in first; live broadcasts queue behind it because
	// Broadcast takes the same lock.
	for _, payload := range snapshot {
		sub.C <- payload
	}
	h.subs[sub] = struct{}{}
	observability.UpdateSubscribers(len(h.subs))

	return sub, nil
}

// SubscriberCount returns the size of the active set.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub)
}

// dropLocked removes a subscriber and closes its channel. Caller holds h.mu.
func (h *Hub) dropLocked(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.C)
	observability.UpdateSubscribers(len(h.subs))
}

// Broadcast delivers an event to all connected subscribers. Delivery is
// best-effort per subscriber: one with a full queue is dropped rather than
// blocking the rest. Alert and rebalance events are forwarded to the
// notifier as well.
func (h *Hub) Broadcast(e *domain.Event) {
	payload, err := domain.EncodeEvent(e)
	if err != nil {
		h.logger.Printf("broadcast: %v", err)
		return
	}

	h.mu.Lock()
	for sub := range h.subs {
		select {
		case sub.C <- payload:
		default:
			h.logger.Println("subscriber queue full, dropping subscriber")
			h.dropLocked(sub)
			observability.DefaultMetrics.SubscribersDropped.Inc()
		}
	}
	h.mu.Unlock()

	observability.RecordBroadcast(string(e.Type))

	if h.notifier != nil && (e.Type == domain.EventAlert || e.Type == domain.EventRebalance) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.notifier.Notify(ctx, e); err != nil {
			h.logger.Printf("notifier: %v", err)
		}
		cancel()
	}
}

// Run pushes the periodic heartbeat (all positions plus unread alerts)
// until the context is cancelled. The heartbeat interval is independent of
// the scheduler's evaluation interval.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-ticker.C:
			h.pushHeartbeat(ctx)
		}
	}
}

func (h *Hub) pushHeartbeat(ctx context.Context) {
	positions, err := h.positions.List(ctx)
	if err != nil {
		h.logger.Printf("heartbeat: list positions: %v", err)
		return
	}
	nowMs := h.now().UnixMilli()
	for _, p := range positions {
		h.Broadcast(&domain.Event{
			Type:        domain.EventPositionUpdate,
			TimestampMs: nowMs,
			Position:    p,
		})
	}

	unread, err := h.alerts.ListUnread(ctx)
	if err != nil {
		h.logger.Printf("heartbeat: list unread alerts: %v", err)
		return
	}
	for _, a := range unread {
		h.Broadcast(&domain.Event{
			Type:        domain.EventAlert,
			TimestampMs: nowMs,
			Alert:       a,
		})
	}
}

// snapshotEvents encodes the current position set as position_update events.
func (h *Hub) snapshotEvents(ctx context.Context) ([][]byte, error) {
	positions, err := h.positions.List(ctx)
	if err != nil {
		return nil, err
	}
	nowMs := h.now().UnixMilli()

	payloads := make([][]byte, 0, len(positions))
	for _, p := range positions {
		payload, err := domain.EncodeEvent(&domain.Event{
			Type:        domain.EventPositionUpdate,
			TimestampMs: nowMs,
			Position:    p,
		})
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		h.dropLocked(sub)
	}
}
