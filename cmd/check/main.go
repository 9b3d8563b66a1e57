// Package main provides a one-shot position check: it runs a single
// evaluation pass against the configured stores and venue, then prints the
// monitor and stats views to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"dlmm-rebalancer/internal/bot"
	"dlmm-rebalancer/internal/engine"
	"dlmm-rebalancer/internal/solana"
	"dlmm-rebalancer/internal/storage"
	chstore "dlmm-rebalancer/internal/storage/clickhouse"
	"dlmm-rebalancer/internal/storage/memory"
	pgstore "dlmm-rebalancer/internal/storage/postgres"
	"dlmm-rebalancer/internal/venue"
	"dlmm-rebalancer/internal/venue/meteora"
	venuestub "dlmm-rebalancer/internal/venue/stub"
	"dlmm-rebalancer/internal/volatility"
)

func main() {
	_ = godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (for dry runs)")
	venueName := flag.String("venue", "meteora", "Liquidity venue implementation (meteora, stub)")
	walletKey := flag.String("wallet-key", os.Getenv("WALLET_SECRET_KEY"), "Base58 wallet secret key for transaction signing")
	dryRun := flag.Bool("dry-run", false, "Evaluate positions without executing venue calls")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall run timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[check] ", log.LstdFlags)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for a dry run)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		positionStore storage.PositionStore
		stopLossStore storage.StopLossConfigStore
		actionStore   storage.ActionStore
		alertStore    storage.AlertStore
		sampleStore   storage.PriceSampleStore
	)

	if *useMemory {
		positionStore = memory.NewPositionStore()
		stopLossStore = memory.NewStopLossConfigStore()
		actionStore = memory.NewActionStore()
		alertStore = memory.NewAlertStore()
		sampleStore = memory.NewPriceSampleStore()
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("connect to postgres: %v", err)
		}
		defer pool.Close()

		chConn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("connect to clickhouse: %v", err)
		}
		defer chConn.Close()

		positionStore = pgstore.NewPositionStore(pool)
		stopLossStore = pgstore.NewStopLossConfigStore(pool)
		actionStore = pgstore.NewActionStore(pool)
		alertStore = pgstore.NewAlertStore(pool)
		sampleStore = chstore.NewPriceSampleStore(chConn)
	}

	liquidityVenue, err := createVenue(*venueName, *rpcEndpoint, *walletKey, *dryRun)
	if err != nil {
		logger.Fatalf("create venue: %v", err)
	}

	eng := engine.New(engine.Options{
		Positions: positionStore,
		StopLoss:  stopLossStore,
		Actions:   actionStore,
		Alerts:    alertStore,
		Samples:   sampleStore,
		Venue:     liquidityVenue,
		Estimator: volatility.NewEstimator(volatility.Options{}),
		Logger:    logger,
	})

	commander := bot.New(bot.Options{
		Positions: positionStore,
		StopLoss:  stopLossStore,
		Actions:   actionStore,
		Alerts:    alertStore,
		Venue:     liquidityVenue,
		Engine:    eng,
		Runner:    &passRunner{eng: eng},
		Logger:    logger,
	})

	if *dryRun {
		logger.Println("Dry run: venue calls are stubbed, no transactions will be sent")
	}

	start := time.Now()
	result, err := eng.RunPass(ctx)
	if err != nil {
		logger.Fatalf("pass failed: %v", err)
	}
	logger.Printf("Pass completed in %v: evaluated=%d rebalanced=%d stopped_out=%d collected=%d skipped=%d failed=%d",
		time.Since(start), result.Evaluated, result.Rebalanced, result.StoppedOut,
		result.Collected, result.Skipped, result.Failed)

	for _, command := range []string{"monitor", "stats"} {
		reply, err := commander.Execute(ctx, command)
		if err != nil {
			logger.Fatalf("%s: %v", command, err)
		}
		fmt.Println(reply)
		fmt.Println()
	}
}

// passRunner adapts the engine to the bot's runner interface so the check
// binary does not need a scheduler.
type passRunner struct {
	eng *engine.Engine
}

func (r *passRunner) RunOnce(ctx context.Context) (*engine.PassResult, error) {
	return r.eng.RunPass(ctx)
}

// createVenue builds the configured liquidity venue. A dry run always gets
// the stub so no transactions leave the process.
func createVenue(name, rpcEndpoint, walletKey string, dryRun bool) (venue.LiquidityVenue, error) {
	if dryRun || name == "stub" {
		return venuestub.New(), nil
	}
	if name != "meteora" {
		return nil, fmt.Errorf("unknown venue %q", name)
	}
	if rpcEndpoint == "" {
		return nil, fmt.Errorf("meteora venue requires --rpc-endpoint")
	}
	if walletKey == "" {
		return nil, fmt.Errorf("meteora venue requires --wallet-key")
	}

	rpc := solana.NewHTTPClient(rpcEndpoint)
	builder, err := meteora.NewWalletBuilder(rpc, walletKey)
	if err != nil {
		return nil, fmt.Errorf("create wallet builder: %w", err)
	}
	return meteora.New(meteora.Options{RPC: rpc, Builder: builder}), nil
}
