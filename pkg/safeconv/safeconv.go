// Package safeconv provides checked integer type conversions. Must functions
// panic on overflow, Safe functions clamp to the target range.
package safeconv

import "math"

// MaxInt is the largest value an int holds on this platform.
const MaxInt = int(^uint(0) >> 1)

// SafeInt64 converts uint64 to int64, clamping to math.MaxInt64 on overflow.
// Use for monotonic counters where saturation is acceptable.
func SafeInt64(v uint64) int64 {
	if v > uint64(math.MaxInt64) {
		return math.MaxInt64
	}

	return int64(v)
}

// MustInt64ToInt converts int64 to int and panics when the value does not
// fit. Only 32-bit platforms have int64 values that do not fit.
func MustInt64ToInt(v int64) int {
	if v > int64(MaxInt) || v < int64(^MaxInt) {
		panic("safeconv: int64 to int overflow")
	}

	return int(v)
}
