package domain

// PositionState tracks where a position sits in the rebalance lifecycle.
type PositionState string

// Position lifecycle states. Range states and stop-loss states are orthogonal:
// a position in any range state may be closed by the stop-loss path.
const (
	StateInRange     PositionState = "IN_RANGE"
	StateNearEdge    PositionState = "NEAR_EDGE"
	StateRebalancing PositionState = "REBALANCING"
	StateFailed      PositionState = "FAILED"
	StateClosed      PositionState = "CLOSED"
)

// Position represents a concentrated-liquidity position on a DLMM pool.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	PositionID string // PRIMARY KEY
	Pool       string // pool address
	Owner      string // wallet that created the position

	LowerBin int32 // inclusive lower bin ID, LowerBin < UpperBin
	UpperBin int32 // inclusive upper bin ID

	AmountX uint64 // token X liquidity, fixed-point (DecimalsX scale)
	AmountY uint64 // token Y liquidity, fixed-point (DecimalsY scale)
	FeesX   uint64 // accrued uncollected fees, token X
	FeesY   uint64 // accrued uncollected fees, token Y

	DepositPrice float64       // pool price at deposit time, used for IL and return
	DepositValue float64       // position value at deposit, quote units
	State        PositionState // current lifecycle state

	CreatedAt int64 // Unix timestamp in milliseconds
	UpdatedAt int64 // last mutation timestamp (ms)
}

// Validate checks range bounds. A position with LowerBin >= UpperBin is
// rejected at configuration time and never reaches evaluation.
func (p *Position) Validate() error {
	if p.PositionID == "" || p.Pool == "" {
		return ErrInvalidPosition
	}
	if p.LowerBin >= p.UpperBin {
		return ErrInvalidRange
	}
	return nil
}

// Width returns the range width in bins.
func (p *Position) Width() int32 {
	return p.UpperBin - p.LowerBin
}
