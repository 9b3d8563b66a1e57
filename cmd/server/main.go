// Package main provides the unified rebalancer service:
// - Price feed (continuous): WebSocket pool subscriptions into the sample store
// - Engine (scheduled): out-of-range detection, stop-loss, rebalancing
// - Fan-out: WebSocket event hub, chat webhook notifications
// - Bot: HTTP command surface (monitor, rebalance, stats, alerts, volatility)
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dlmm-rebalancer/internal/bot"
	"dlmm-rebalancer/internal/engine"
	"dlmm-rebalancer/internal/fanout"
	"dlmm-rebalancer/internal/feed"
	"dlmm-rebalancer/internal/observability"
	"dlmm-rebalancer/internal/scheduler"
	"dlmm-rebalancer/internal/solana"
	"dlmm-rebalancer/internal/storage"
	chstore "dlmm-rebalancer/internal/storage/clickhouse"
	"dlmm-rebalancer/internal/storage/memory"
	"dlmm-rebalancer/internal/storage/migrations"
	pgstore "dlmm-rebalancer/internal/storage/postgres"
	"dlmm-rebalancer/internal/venue"
	"dlmm-rebalancer/internal/venue/meteora"
	venuestub "dlmm-rebalancer/internal/venue/stub"
	"dlmm-rebalancer/internal/volatility"
)

// Server holds all components of the rebalancer service.
type Server struct {
	pools []string

	stores    *allStores
	venue     venue.LiquidityVenue
	rpc       solana.RPCClient
	engine    *engine.Engine
	scheduler *scheduler.Scheduler
	hub       *fanout.Hub

	logger  *log.Logger
	started time.Time
}

// allStores holds all storage implementations.
type allStores struct {
	positionStore storage.PositionStore
	stopLossStore storage.StopLossConfigStore
	actionStore   storage.ActionStore
	alertStore    storage.AlertStore
	sampleStore   storage.PriceSampleStore
}

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	venueName := flag.String("venue", "meteora", "Liquidity venue implementation (meteora, stub)")
	pools := flag.String("pools", os.Getenv("POOLS"), "Comma-separated DLMM pool addresses to watch")
	walletKey := flag.String("wallet-key", os.Getenv("WALLET_SECRET_KEY"), "Base58 wallet secret key for transaction signing")
	webhookURL := flag.String("webhook-url", os.Getenv("WEBHOOK_URL"), "Chat webhook URL for notifications (optional)")
	checkInterval := flag.Duration("check-interval", 5*time.Minute, "Position evaluation interval")
	feeCollectEvery := flag.Int("fee-collect-every", 12, "Collect fees every Nth pass (0 disables)")
	httpAddr := flag.String("http-addr", ":8080", "HTTP address for bot commands, event stream and metrics")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	if *venueName == "meteora" && *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required for the meteora venue")
	}

	poolList := splitList(*pools)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create venue
	liquidityVenue, rpcClient, err := createVenue(*venueName, *rpcEndpoint, *walletKey)
	if err != nil {
		logger.Fatalf("Failed to create venue: %v", err)
	}

	// Volatility estimator over the shared sample store
	estimator := volatility.NewEstimator(volatility.Options{})

	// Notifier (optional)
	var notifier fanout.Notifier
	if *webhookURL != "" {
		sender := &bot.WebhookSender{URL: *webhookURL}
		notifier = bot.NewNotifier(sender, log.New(os.Stdout, "[notify] ", log.LstdFlags))
		logger.Printf("Webhook notifications enabled")
	}

	// Event hub
	hub := fanout.New(fanout.Options{
		Positions: stores.positionStore,
		Alerts:    stores.alertStore,
		Notifier:  notifier,
		Logger:    log.New(os.Stdout, "[fanout] ", log.LstdFlags),
	})

	// Engine
	eng := engine.New(engine.Options{
		Positions:       stores.positionStore,
		StopLoss:        stores.stopLossStore,
		Actions:         stores.actionStore,
		Alerts:          stores.alertStore,
		Samples:         stores.sampleStore,
		Venue:           liquidityVenue,
		Estimator:       estimator,
		Hub:             hub,
		Logger:          log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile),
		FeeCollectEvery: *feeCollectEvery,
	})

	// Scheduler
	sched := scheduler.New(scheduler.Options{
		Runner:   eng,
		Interval: *checkInterval,
		Logger:   log.New(os.Stdout, "[scheduler] ", log.LstdFlags),
	})

	server := &Server{
		pools:     poolList,
		stores:    stores,
		venue:     liquidityVenue,
		rpc:       rpcClient,
		engine:    eng,
		scheduler: sched,
		hub:       hub,
		logger:    logger,
		started:   time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	// Run the service
	err = server.Run(ctx, *wsEndpoint)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// splitList splits a comma-separated flag value.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// createStores creates all required stores, running migrations for the
// database-backed set.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			positionStore: memory.NewPositionStore(),
			stopLossStore: memory.NewStopLossConfigStore(),
			actionStore:   memory.NewActionStore(),
			alertStore:    memory.NewAlertStore(),
			sampleStore:   memory.NewPriceSampleStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	stores := &allStores{
		positionStore: pgstore.NewPositionStore(pool),
		stopLossStore: pgstore.NewStopLossConfigStore(pool),
		actionStore:   pgstore.NewActionStore(pool),
		alertStore:    pgstore.NewAlertStore(pool),
		sampleStore:   chstore.NewPriceSampleStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// createVenue builds the configured liquidity venue. The meteora venue
// also exposes its RPC client so the status endpoint can report the slot.
func createVenue(name, rpcEndpoint, walletKey string) (venue.LiquidityVenue, solana.RPCClient, error) {
	switch name {
	case "stub":
		return venuestub.New(), nil, nil
	case "meteora":
		rpc := solana.NewHTTPClient(rpcEndpoint)
		if walletKey == "" {
			return nil, nil, fmt.Errorf("meteora venue requires --wallet-key")
		}
		builder, err := meteora.NewWalletBuilder(rpc, walletKey)
		if err != nil {
			return nil, nil, fmt.Errorf("create wallet builder: %w", err)
		}
		return meteora.New(meteora.Options{
			RPC:     rpc,
			Builder: builder,
			Logger:  log.New(os.Stdout, "[meteora] ", log.LstdFlags),
		}), rpc, nil
	default:
		return nil, nil, fmt.Errorf("unknown venue %q", name)
	}
}

// Run starts all components and blocks until the context is cancelled
// or a component fails.
func (s *Server) Run(ctx context.Context, wsEndpoint string) error {
	s.logger.Println("Starting rebalancer...")

	errCh := make(chan error, 3)

	// Hub heartbeat
	go func() {
		if err := s.hub.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("fanout hub: %w", err)
		}
	}()

	// Price feed, when pools and a WS endpoint are configured
	if len(s.pools) > 0 && wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, wsEndpoint, nil)
		if err != nil {
			return fmt.Errorf("create websocket client: %w", err)
		}
		defer ws.Close()

		watcher := feed.New(feed.Options{
			WS:      ws,
			Samples: s.stores.sampleStore,
			Hub:     s.hub,
			Logger:  log.New(os.Stdout, "[feed] ", log.LstdFlags),
			Pools:   s.pools,
		})

		go func() {
			if err := watcher.Run(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("price feed: %w", err)
			}
		}()
		s.logger.Printf("Price feed started for %d pools", len(s.pools))
	} else {
		s.logger.Println("Price feed disabled (no pools or WS endpoint), relying on venue bin prices")
	}

	// Evaluation scheduler
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer s.scheduler.Stop()

	s.logger.Println("Rebalancer started")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// startHTTPServer starts the HTTP server for commands/events/metrics.
func (s *Server) startHTTPServer(addr string) {
	commander := bot.New(bot.Options{
		Positions: s.stores.positionStore,
		StopLoss:  s.stores.stopLossStore,
		Actions:   s.stores.actionStore,
		Alerts:    s.stores.alertStore,
		Venue:     s.venue,
		Engine:    s.engine,
		Runner:    s.scheduler,
		Logger:    log.New(os.Stdout, "[bot] ", log.LstdFlags),
	})

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Live event stream
	mux.HandleFunc("/ws", s.hub.ServeWS)

	// Bot command surface
	mux.Handle("/command", commander.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Positions   int    `json:"positions"`
	Subscribers int    `json:"subscribers"`
	LastCheckMs int64  `json:"last_check_ms"`
	Slot        int64  `json:"slot,omitempty"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	positions, err := s.stores.positionStore.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Slot is best-effort: the stub venue has no RPC client and a failed
	// call just leaves it at zero.
	var slot int64
	if s.rpc != nil {
		if got, err := s.rpc.GetSlot(r.Context()); err == nil {
			slot = got
		}
	}

	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		Positions:   len(positions),
		Subscribers: s.hub.SubscriberCount(),
		LastCheckMs: s.engine.LastCheckMs(),
		Slot:        slot,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
