package domain

// TokenMeta describes one side of a pool's token pair.
type TokenMeta struct {
	Mint     string // token mint address
	Symbol   string // display symbol
	Decimals uint8  // fixed-point scale
}

// PoolSnapshot is a read-only view of a DLMM pool at evaluation time.
// Refreshed each cycle; may be served from a short-lived cache keyed by
// pool address.
type PoolSnapshot struct {
	Pool     string    // pool address
	TokenX   TokenMeta // base token
	TokenY   TokenMeta // quote token
	BinStep  uint16    // price increment per bin, basis points
	ActiveID int32     // bin currently containing the trading price
	Price    float64   // price derived from ActiveID and BinStep
	FeeTier  float64   // pool fee, fraction

	FetchedAt int64 // Unix timestamp in milliseconds
}
