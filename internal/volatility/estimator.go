// Package volatility estimates price volatility per pool from sampled
// price windows, with a TTL-bounded result cache.
package volatility

import (
	"errors"
	"math"
	"sync"
	"time"

	"dlmm-rebalancer/internal/domain"
)

// ErrInsufficientData is returned when a price window is empty or has no
// positive samples. Callers skip the cycle for that pool instead of
// propagating a degenerate statistic.
var ErrInsufficientData = errors.New("insufficient price data for volatility estimate")

// Default estimator parameters.
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultHighVolRatio = 0.05
)

// Range-width multiplier brackets, evaluated top-down, first match wins.
const (
	ratioWide   = 0.10 // ratio above this doubles the base width
	ratioHigh   = 0.05
	ratioMedium = 0.02
)

// Estimator computes and caches VolatilityStat per pool.
type Estimator struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[string]*domain.VolatilityStat
}

// Options configures an Estimator.
type Options struct {
	// CacheTTL bounds how long a computed stat is served without
	// recomputation. Default: 5 minutes.
	CacheTTL time.Duration
	// Now overrides the clock, for tests. Default: time.Now.
	Now func() time.Time
}

// NewEstimator creates an Estimator.
func NewEstimator(opts Options) *Estimator {
	ttl := opts.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Estimator{
		ttl:   ttl,
		now:   now,
		cache: make(map[string]*domain.VolatilityStat),
	}
}

// GetVolatility returns the volatility stat for pool, computed from the
// given price window. A cache hit within the TTL returns the prior value
// without recomputation; callers must not assume freshness beyond the TTL.
func (e *Estimator) GetVolatility(pool string, prices []float64) (*domain.VolatilityStat, error) {
	now := e.now()

	e.mu.Lock()
	if cached, ok := e.cache[pool]; ok {
		age := now.UnixMilli() - cached.ComputedAt
		if age < e.ttl.Milliseconds() {
			stat := *cached
			e.mu.Unlock()
			return &stat, nil
		}
	}
	e.mu.Unlock()

	stat, err := Compute(pool, prices, now.UnixMilli())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[pool] = stat
	e.mu.Unlock()

	result := *stat
	return &result, nil
}

// Invalidate drops the cached stat for pool, forcing recomputation on the
// next call. Used when a pool's positions were just rebalanced.
func (e *Estimator) Invalidate(pool string) {
	e.mu.Lock()
	delete(e.cache, pool)
	e.mu.Unlock()
}

// Compute calculates mean and population standard deviation for a price
// window without touching the cache. Returns ErrInsufficientData for an
// empty or all-zero window.
func Compute(pool string, prices []float64, computedAt int64) (*domain.VolatilityStat, error) {
	if len(prices) == 0 {
		return nil, ErrInsufficientData
	}

	sum := 0.0
	for _, p := range prices {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, ErrInsufficientData
		}
		sum += p
	}
	mean := sum / float64(len(prices))
	if mean <= 0 {
		return nil, ErrInsufficientData
	}

	variance := 0.0
	for _, p := range prices {
		d := p - mean
		variance += d * d
	}
	variance /= float64(len(prices))

	return &domain.VolatilityStat{
		Pool:       pool,
		Mean:       mean,
		StdDev:     math.Sqrt(variance),
		Samples:    len(prices),
		ComputedAt: computedAt,
	}, nil
}

// IsHighVolatility reports whether stddev/mean exceeds thresholdRatio.
func IsHighVolatility(stat *domain.VolatilityStat, thresholdRatio float64) bool {
	return stat.Ratio() > thresholdRatio
}

// RecommendedRangeWidth scales baseWidth by the volatility-ratio bracket:
// ratio > 0.10 -> x2.0, > 0.05 -> x1.5, > 0.02 -> x1.2, else x0.8.
func RecommendedRangeWidth(stat *domain.VolatilityStat, baseWidth float64) float64 {
	ratio := stat.Ratio()
	switch {
	case ratio > ratioWide:
		return baseWidth * 2.0
	case ratio > ratioHigh:
		return baseWidth * 1.5
	case ratio > ratioMedium:
		return baseWidth * 1.2
	default:
		return baseWidth * 0.8
	}
}
