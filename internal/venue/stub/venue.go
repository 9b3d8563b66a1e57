// Package stub provides a scriptable in-memory LiquidityVenue for tests
// and the --use-stub development mode.
package stub

import (
	"context"
	"sync"

	"dlmm-rebalancer/internal/domain"
	"dlmm-rebalancer/internal/rangecalc"
	"dlmm-rebalancer/internal/venue"
)

// Venue is a scriptable LiquidityVenue implementation.
type Venue struct {
	mu sync.Mutex

	// Pools maps pool address to its snapshot.
	Pools map[string]*domain.PoolSnapshot

	// RemoveErr, AddErr and CollectErr force the corresponding call to fail.
	RemoveErr  error
	AddErr     error
	CollectErr error

	// FeesX, FeesY are returned by CollectFees.
	FeesX uint64
	FeesY uint64

	// Call log.
	RemoveCalls  []RemoveCall
	AddCalls     []AddCall
	CollectCalls []string
}

// RemoveCall records one RemoveLiquidity invocation.
type RemoveCall struct {
	PositionID string
	Bps        uint16
}

// AddCall records one AddLiquidity invocation.
type AddCall struct {
	Pool     string
	LowerBin int32
	UpperBin int32
	AmountX  uint64
	AmountY  uint64
}

// New creates an empty stub venue.
func New() *Venue {
	return &Venue{Pools: make(map[string]*domain.PoolSnapshot)}
}

// Compile-time interface check.
var _ venue.LiquidityVenue = (*Venue)(nil)

// SetPool registers a pool snapshot, deriving Price from the active bin.
func (v *Venue) SetPool(pool string, binStep uint16, activeID int32) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Pools[pool] = &domain.PoolSnapshot{
		Pool:     pool,
		BinStep:  binStep,
		ActiveID: activeID,
		Price:    rangecalc.PriceFromBin(activeID, binStep),
	}
}

// GetActiveBin returns the scripted active bin.
func (v *Venue) GetActiveBin(_ context.Context, pool string) (int32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap, ok := v.Pools[pool]
	if !ok {
		return 0, venue.ErrPoolNotFound
	}
	return snap.ActiveID, nil
}

// GetBinPrices returns geometric prices for the requested range.
func (v *Venue) GetBinPrices(_ context.Context, pool string, lowerBin, upperBin int32) ([]float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap, ok := v.Pools[pool]
	if !ok {
		return nil, venue.ErrPoolNotFound
	}
	prices := make([]float64, 0, upperBin-lowerBin+1)
	for bin := lowerBin; bin <= upperBin; bin++ {
		prices = append(prices, rangecalc.PriceFromBin(bin, snap.BinStep))
	}
	return prices, nil
}

// GetPoolConfig returns a copy of the scripted snapshot.
func (v *Venue) GetPoolConfig(_ context.Context, pool string) (*domain.PoolSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	snap, ok := v.Pools[pool]
	if !ok {
		return nil, venue.ErrPoolNotFound
	}
	snapCopy := *snap
	return &snapCopy, nil
}

// RemoveLiquidity records the call and returns the scripted error.
func (v *Venue) RemoveLiquidity(_ context.Context, positionID string, bps uint16) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.RemoveErr != nil {
		return v.RemoveErr
	}
	v.RemoveCalls = append(v.RemoveCalls, RemoveCall{PositionID: positionID, Bps: bps})
	return nil
}

// AddLiquidity records the call and returns the scripted error.
func (v *Venue) AddLiquidity(_ context.Context, pool string, lowerBin, upperBin int32, amountX, amountY uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.AddErr != nil {
		return v.AddErr
	}
	v.AddCalls = append(v.AddCalls, AddCall{
		Pool: pool, LowerBin: lowerBin, UpperBin: upperBin, AmountX: amountX, AmountY: amountY,
	})
	return nil
}

// CollectFees records the call and returns the scripted fees.
func (v *Venue) CollectFees(_ context.Context, positionID string) (uint64, uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.CollectErr != nil {
		return 0, 0, v.CollectErr
	}
	v.CollectCalls = append(v.CollectCalls, positionID)
	return v.FeesX, v.FeesY, nil
}
