// Package feed watches DLMM pool accounts over the Solana WebSocket
// endpoint and turns account updates into stored price samples and
// price_update events. The sample store is what gives the volatility
// estimator its recent price window.
package feed

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/observability"
	"dlmm-rebalancer/internal/rangecalc"
	"dlmm-rebalancer/internal/solana"
	"dlmm-rebalancer/internal/storage"
	"dlmm-rebalancer/internal/venue/meteora"
)

// Broadcaster pushes events to connected subscribers. Implemented by
// fanout.Hub; nil disables broadcasting.
type Broadcaster interface {
	Broadcast(e *domain.Event)
}

// Watcher subscribes to pool accounts and records their price history.
type Watcher struct {
	ws      solana.WSClient
	samples storage.PriceSampleStore
	hub     Broadcaster
	logger  *log.Logger
	pools   []string
	now     func() time.Time

	// lastMs deduplicates same-millisecond updates per pool; the sample
	// store keys on (pool, timestamp_ms).
	mu     sync.Mutex
	lastMs map[string]int64
}

// Options configures a Watcher. WS, Samples and Pools are required.
type Options struct {
	WS      solana.WSClient
	Samples storage.PriceSampleStore
	Hub     Broadcaster
	Logger  *log.Logger
	Pools   []string
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates a Watcher.
func New(opts Options) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Watcher{
		ws:      opts.WS,
		samples: opts.Samples,
		hub:     opts.Hub,
		logger:  logger,
		pools:   opts.Pools,
		now:     now,
		lastMs:  make(map[string]int64),
	}
}

// Run subscribes to every configured pool and processes notifications
// until the context is cancelled or all subscription channels close.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.pools) == 0 {
		return fmt.Errorf("no pools to watch")
	}

	var wg sync.WaitGroup
	for _, pool := range w.pools {
		ch, err := w.ws.SubscribeAccount(ctx, pool)
		if err != nil {
			return fmt.Errorf("subscribe pool %s: %w", pool, err)
		}
		w.logger.Printf("watching pool %s", pool)

		wg.Add(1)
		go func(pool string, ch <-chan solana.AccountNotification) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case notif, ok := <-ch:
					if !ok {
						return
					}
					w.handle(ctx, pool, notif)
				}
			}
		}(pool, ch)
	}

	wg.Wait()
	return ctx.Err()
}

// handle decodes one account update into a price sample.
func (w *Watcher) handle(ctx context.Context, pool string, notif solana.AccountNotification) {
	activeID, binStep, err := meteora.DecodePoolState(notif.Data)
	if err != nil {
		w.logger.Printf("decode pool %s update: %v", pool, err)
		observability.DefaultMetrics.PriceDecodeErrors.Inc()
		return
	}

	nowMs := w.now().UnixMilli()

	w.mu.Lock()
	if w.lastMs[pool] == nowMs {
		w.mu.Unlock()
		return
	}
	w.lastMs[pool] = nowMs
	w.mu.Unlock()

	price := rangecalc.PriceFromBin(activeID, binStep)
	sample := &domain.PriceSample{
		Pool:        pool,
		TimestampMs: nowMs,
		ActiveID:    activeID,
		Price:       price,
	}

	if err := w.samples.InsertBulk(ctx, []*domain.PriceSample{sample}); err != nil {
		w.logger.Printf("store price sample for %s: %v", pool, err)
	}
	observability.RecordPriceUpdate(pool, nowMs)

	if w.hub != nil {
		w.hub.Broadcast(&domain.Event{
			Type:        domain.EventPriceUpdate,
			TimestampMs: nowMs,
			Price: &domain.PriceUpdate{
				Pool:        pool,
				Price:       price,
				ActiveID:    activeID,
				TimestampMs: nowMs,
			},
		})
	}
}
