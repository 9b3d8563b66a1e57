// Package meteora implements the liquidity venue over Meteora DLMM pools
// on Solana: pool state reads via JSON-RPC account fetches and liquidity
// mutations via a transaction builder plus sendTransaction.
package meteora

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
	"dlmm-rebalancer/internal/venue"
)

// DefaultPoolCacheTTL bounds how long a decoded pool snapshot is reused.
const DefaultPoolCacheTTL = 10 * time.Second

// TxBuilder assembles signed, base64-encoded transactions for liquidity
// mutations. The wallet keypair stays inside the builder; the venue only
// submits what it gets back.
type TxBuilder interface {
	BuildRemoveLiquidity(ctx context.Context, positionID string, bps uint16) (string, error)
	BuildAddLiquidity(ctx context.Context, pool string, lowerBin, upperBin int32, amountX, amountY uint64) (string, error)
	BuildCollectFees(ctx context.Context, positionID string) (string, error)
}

// Venue is the Meteora DLMM implementation of venue.LiquidityVenue.
type Venue struct {
	rpc     solana.RPCClient
	builder TxBuilder
	logger  *log.Logger

	cacheTTL time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]*domain.PoolSnapshot
}

// Options configures a Venue. RPC and Builder are required.
type Options struct {
	RPC     solana.RPCClient
	Builder TxBuilder
	Logger  *log.Logger

	// PoolCacheTTL bounds pool snapshot reuse. Default: 10s.
	PoolCacheTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// New creates a Venue.
func New(opts Options) *Venue {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	ttl := opts.PoolCacheTTL
	if ttl <= 0 {
		ttl = DefaultPoolCacheTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Venue{
		rpc:      opts.RPC,
		builder:  opts.Builder,
		logger:   logger,
		cacheTTL: ttl,
		now:      now,
		cache:    make(map[string]*domain.PoolSnapshot),
	}
}

// Compile-time interface check.
var _ venue.LiquidityVenue = (*Venue)(nil)

// GetPoolConfig fetches and decodes the LbPair account, resolving token
// decimals from the mint accounts. Snapshots are cached briefly to keep one
// evaluation pass from hammering the RPC endpoint.
func (v *Venue) GetPoolConfig(ctx context.Context, pool string) (*domain.PoolSnapshot, error) {
	nowMs := v.now().UnixMilli()

	v.mu.Lock()
	if cached, ok := v.cache[pool]; ok && nowMs-cached.FetchedAt < v.cacheTTL.Milliseconds() {
		snapCopy := *cached
		v.mu.Unlock()
		return &snapCopy, nil
	}
	v.mu.Unlock()

	info, err := v.rpc.GetAccountInfo(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("%w: get pool account %s: %v", venue.ErrCallFailed, pool, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", venue.ErrPoolNotFound, pool)
	}

	state, err := decodeLbPair(info.Data)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool, err)
	}

	snap := &domain.PoolSnapshot{
		Pool:      pool,
		BinStep:   state.BinStep,
		ActiveID:  state.ActiveID,
		Price:     rangecalc.PriceFromBin(state.ActiveID, state.BinStep),
		TokenX:    domain.TokenMeta{Mint: state.TokenXMint},
		TokenY:    domain.TokenMeta{Mint: state.TokenYMint},
		FetchedAt: nowMs,
	}

	mints, err := v.rpc.GetMultipleAccounts(ctx, []string{state.TokenXMint, state.TokenYMint})
	if err != nil {
		return nil, fmt.Errorf("%w: get mint accounts for %s: %v", venue.ErrCallFailed, pool, err)
	}
	if len(mints) == 2 {
		if mints[0] != nil {
			if d, err := decodeMintDecimals(mints[0].Data); err == nil {
				snap.TokenX.Decimals = d
			}
		}
		if mints[1] != nil {
			if d, err := decodeMintDecimals(mints[1].Data); err == nil {
				snap.TokenY.Decimals = d
			}
		}
	}

	v.mu.Lock()
	v.cache[pool] = snap
	v.mu.Unlock()

	snapCopy := *snap
	return &snapCopy, nil
}

// GetActiveBin returns the pool's current active bin.
func (v *Venue) GetActiveBin(ctx context.Context, pool string) (int32, error) {
	snap, err := v.GetPoolConfig(ctx, pool)
	if err != nil {
		return 0, err
	}
	return snap.ActiveID, nil
}

// GetBinPrices returns prices for [lowerBin, upperBin], restricted to bins
// whose bin array account exists on chain. Bin prices are geometric in the
// bin step, so they are computed rather than read from the arrays.
func (v *Venue) GetBinPrices(ctx context.Context, pool string, lowerBin, upperBin int32) ([]float64, error) {
	snap, err := v.GetPoolConfig(ctx, pool)
	if err != nil {
		return nil, err
	}
	if lowerBin > upperBin {
		lowerBin, upperBin = upperBin, lowerBin
	}

	firstArray := binArrayIndex(lowerBin)
	lastArray := binArrayIndex(upperBin)

	keys := make([]string, 0, lastArray-firstArray+1)
	for idx := firstArray; idx <= lastArray; idx++ {
		keys = append(keys, deriveBinArrayPDA(pool, idx))
	}

	accounts, err := v.rpc.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: get bin arrays for %s: %v", venue.ErrCallFailed, pool, err)
	}

	exists := make(map[int64]bool, len(accounts))
	for i, acct := range accounts {
		exists[firstArray+int64(i)] = acct != nil
	}

	prices := make([]float64, 0, upperBin-lowerBin+1)
	for bin := lowerBin; bin <= upperBin; bin++ {
		if !exists[binArrayIndex(bin)] {
			continue
		}
		prices = append(prices, rangecalc.PriceFromBin(bin, snap.BinStep))
	}
	return prices, nil
}

// RemoveLiquidity withdraws bps basis points of the position's liquidity.
func (v *Venue) RemoveLiquidity(ctx context.Context, positionID string, bps uint16) (err error) {
	start := time.Now()
	defer func() { observability.RecordVenueCall("remove_liquidity", time.Since(start).Seconds(), err) }()

	tx, err := v.builder.BuildRemoveLiquidity(ctx, positionID, bps)
	if err != nil {
		return fmt.Errorf("%w: build remove liquidity: %v", venue.ErrCallFailed, err)
	}
	sig, err := v.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: send remove liquidity: %v", venue.ErrCallFailed, err)
	}
	v.logger.Printf("remove liquidity sent: position=%s bps=%d sig=%s", positionID, bps, sig)
	return nil
}

// AddLiquidity deposits into [lowerBin, upperBin] on the pool.
func (v *Venue) AddLiquidity(ctx context.Context, pool string, lowerBin, upperBin int32, amountX, amountY uint64) (err error) {
	start := time.Now()
	defer func() { observability.RecordVenueCall("add_liquidity", time.Since(start).Seconds(), err) }()

	tx, err := v.builder.BuildAddLiquidity(ctx, pool, lowerBin, upperBin, amountX, amountY)
	if err != nil {
		return fmt.Errorf("%w: build add liquidity: %v", venue.ErrCallFailed, err)
	}
	sig, err := v.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: send add liquidity: %v", venue.ErrCallFailed, err)
	}
	v.logger.Printf("add liquidity sent: pool=%s range=[%d, %d] sig=%s", pool, lowerBin, upperBin, sig)
	return nil
}

// CollectFees claims accrued fees for the position. The on-chain amounts
// are only known after confirmation, so the claimed totals are reported as
// zero and reconciled by the next position refresh.
func (v *Venue) CollectFees(ctx context.Context, positionID string) (_ uint64, _ uint64, err error) {
	start := time.Now()
	defer func() { observability.RecordVenueCall("collect_fees", time.Since(start).Seconds(), err) }()

	tx, err := v.builder.BuildCollectFees(ctx, positionID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: build collect fees: %v", venue.ErrCallFailed, err)
	}
	sig, err := v.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: send collect fees: %v", venue.ErrCallFailed, err)
	}
	v.logger.Printf("collect fees sent: position=%s sig=%s", positionID, sig)
	return 0, 0, nil
}

// InvalidatePool drops the cached snapshot for a pool.
func (v *Venue) InvalidatePool(pool string) {
	v.mu.Lock()
	delete(v.cache, pool)
	v.mu.Unlock()
}
