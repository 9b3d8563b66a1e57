package domain

// ActionKind classifies a recorded engine decision.
type ActionKind string

// Action kinds.
const (
	ActionRebalance ActionKind = "REBALANCE"
	ActionStopLoss  ActionKind = "STOP_LOSS"
	ActionNone      ActionKind = "NONE"
)

// ActionStatus is the execution outcome of an action.
type ActionStatus string

// Action statuses.
const (
	ActionPending ActionStatus = "PENDING"
	ActionSuccess ActionStatus = "SUCCESS"
	ActionFailed  ActionStatus = "FAILED"
)

// BinRange is an inclusive [Lower, Upper] bin interval.
type BinRange struct {
	Lower int32
	Upper int32
}

// Width returns the range width in bins.
func (r BinRange) Width() int32 {
	return r.Upper - r.Lower
}

// RebalanceAction is one append-only record of an executed (or attempted)
// engine action. Corresponds to rebalance_actions table in PostgreSQL.
type RebalanceAction struct {
	ActionID   string       // PRIMARY KEY, uuid
	PositionID string       // position the action applied to
	Pool       string       // pool address
	Kind       ActionKind   // REBALANCE | STOP_LOSS | NONE
	Reason     string       // human-readable trigger description
	OldRange   BinRange     // range before the action
	NewRange   *BinRange    // range after a rebalance (nil for stop-loss)
	Status     ActionStatus // PENDING | SUCCESS | FAILED
	Error      string       // venue error text when Status == FAILED
	CreatedAt  int64        // Unix timestamp in milliseconds
}
