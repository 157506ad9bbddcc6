package mathhelp

import (
	"math"
	"sort"

	"golang.org/x/exp/constraints"
)

func Pow2(n uint) uint {
	return 1 << n
}

// BetweenInc reports whether f lies between p and q, both inclusive.
// The order of p and q does not matter.
func BetweenInc[T constraints.Ordered](f, p, q T) bool {
	if p <= q {
		return p <= f && f <= q
	}
	return q <= f && f <= p
}

// CeilDiv divides n by d rounding up. d must be positive.
func CeilDiv[T constraints.Integer](n, d T) T {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

// Round rounds f half away from zero to the given number of decimals.
// NaN and infinities are returned as is.
func Round(f float64, decimals int) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	p := math.Pow(10, float64(decimals))
	r := math.Round(f*p) / p
	if r == 0 {
		// no negative zero in output
		return 0
	}
	return r
}

// Median returns the middle value of values, or the mean of the two middle
// values of an even count. values is not reordered. NaN for no values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// IsIntegral reports whether f is a finite whole number.
func IsIntegral(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}
