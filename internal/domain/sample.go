package domain

// PriceSample is one observed pool price point.
// Corresponds to price_samples table in ClickHouse.
type PriceSample struct {
	Pool        string  // pool address
	TimestampMs int64   // Unix timestamp in milliseconds
	ActiveID    int32   // active bin at sample time
	Price       float64 // derived price
}
