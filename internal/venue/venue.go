// Package venue defines the liquidity venue capability consumed by the
// rebalance engine. Implementations live in subpackages; the engine only
// sees this interface.
package venue

import (
	"context"
	"errors"

	"dlmm-rebalancer/internal/domain"
)

// Venue errors.
var (
	// ErrPoolNotFound is returned when the pool account does not exist.
	ErrPoolNotFound = errors.New("pool not found")

	// ErrPositionNotFound is returned when the position account does not exist.
	ErrPositionNotFound = errors.New("position not found")

	// ErrCallFailed wraps transport or on-chain execution failures. A
	// timeout on a venue call is reported as ErrCallFailed; callers never
	// retry automatically.
	ErrCallFailed = errors.New("venue call failed")
)

// BPS is the denominator for basis-point liquidity shares.
const BPS = 10000

// LiquidityVenue is the on-chain DLMM capability. All operations may fail
// and must be bounded by the caller's context deadline.
type LiquidityVenue interface {
	// GetActiveBin returns the pool's current active bin ID.
	GetActiveBin(ctx context.Context, pool string) (int32, error)

	// GetBinPrices returns per-bin prices for the inclusive bin range.
	GetBinPrices(ctx context.Context, pool string, lowerBin, upperBin int32) ([]float64, error)

	// GetPoolConfig returns the pool snapshot: token pair metadata,
	// bin step, active bin and derived price.
	GetPoolConfig(ctx context.Context, pool string) (*domain.PoolSnapshot, error)

	// RemoveLiquidity withdraws bps/10000 of the position's liquidity.
	RemoveLiquidity(ctx context.Context, positionID string, bps uint16) error

	// AddLiquidity deposits amounts into the pool across [lowerBin, upperBin].
	AddLiquidity(ctx context.Context, pool string, lowerBin, upperBin int32, amountX, amountY uint64) error

	// CollectFees claims accrued fees for the position and returns the
	// collected amounts per token.
	CollectFees(ctx context.Context, positionID string) (feesX, feesY uint64, err error)
}
