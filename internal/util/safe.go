package util

import "math"

// SaturatingAddInt64 adds b to a, clamping to math.MaxInt64/math.MinInt64
// instead of wrapping. The weighted round-robin accumulator relies on this
// so a pathological weight/route-count combination cannot overflow into a
// negative "current" and invert the selection order.
func SaturatingAddInt64(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// SafeUint64 clamps a negative int64 to 0 before widening.
func SafeUint64(value int64) uint64 {
	if value < 0 {
		return 0
	}
	return uint64(value)
}
