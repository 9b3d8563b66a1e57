package domain

// VolatilityStat summarizes recent price behavior for one pool.
// Mean is always > 0 when computed from a valid price series; degenerate
// inputs are rejected by the estimator instead of producing a zero mean.
type VolatilityStat struct {
	Pool       string  // pool address
	Mean       float64 // arithmetic mean of the sampled prices
	StdDev     float64 // population standard deviation
	Samples    int     // number of prices in the window
	ComputedAt int64   // Unix timestamp in milliseconds
}

// Ratio returns the volatility ratio stddev/mean used by the range-width
// brackets. Mean is guaranteed positive by the estimator.
func (v *VolatilityStat) Ratio() float64 {
	if v.Mean <= 0 {
		return 0
	}
	return v.StdDev / v.Mean
}
