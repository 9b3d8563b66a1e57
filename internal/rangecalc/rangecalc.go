// Package rangecalc provides the pure bin/price math for DLMM pools.
// Price grows geometrically with bin ID: each step multiplies the price
// by (1 + binStep/10000).
package rangecalc

import "math"

// basisPoints is the bin step denominator.
const basisPoints = 10000.0

// PriceFromBin returns the price at binID for the given bin step.
func PriceFromBin(binID int32, binStep uint16) float64 {
	return math.Pow(1+float64(binStep)/basisPoints, float64(binID))
}

// BinFromPrice returns the bin containing price. Rounds toward the lower
// bin, so re-deriving bins from a computed price never narrows a range.
func BinFromPrice(price float64, binStep uint16) int32 {
	step := math.Log(1 + float64(binStep)/basisPoints)
	// Nudge before flooring so that exact bin boundaries computed through
	// PriceFromBin land back on their own bin despite float error.
	return int32(math.Floor(math.Log(price)/step + 1e-9))
}

// IsOutOfRange reports whether activeBin is within threshold*width bins of
// either range edge, or outside the range entirely. This is the
// approaching-edge early warning, not a strict containment test.
func IsOutOfRange(activeBin, lowerBin, upperBin int32, threshold float64) bool {
	if activeBin <= lowerBin || activeBin >= upperBin {
		return true
	}
	margin := threshold * float64(upperBin-lowerBin)
	if float64(activeBin-lowerBin) <= margin {
		return true
	}
	return float64(upperBin-activeBin) <= margin
}

// PriceRange is a symmetric price interval around a center price.
type PriceRange struct {
	Lower float64
	Upper float64
}

// OptimalRange returns the symmetric price range of total fractional width
// widthFraction centered on currentPrice.
func OptimalRange(currentPrice, widthFraction float64) PriceRange {
	half := widthFraction / 2
	return PriceRange{
		Lower: currentPrice * (1 - half),
		Upper: currentPrice * (1 + half),
	}
}

// BinsForRange converts a price range to inclusive bin bounds. The upper
// bound is widened by one bin when both prices collapse into the same bin
// so the result is always a valid range.
func BinsForRange(r PriceRange, binStep uint16) (lower, upper int32) {
	lower = BinFromPrice(r.Lower, binStep)
	upper = BinFromPrice(r.Upper, binStep)
	if upper <= lower {
		upper = lower + 1
	}
	return lower, upper
}

// ImpermanentLoss returns the IL percentage for a price ratio
// finalPrice/initialPrice. Zero at ratio 1, symmetric under ratio -> 1/ratio,
// always >= 0.
func ImpermanentLoss(priceRatio float64) float64 {
	if priceRatio <= 0 {
		return 0
	}
	return math.Abs(2*math.Sqrt(priceRatio)/(1+priceRatio)-1) * 100
}
