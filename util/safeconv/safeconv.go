package safeconv

import (
	"math"
	"time"
)

// IntSliceToInt64Slice widens token ids returned by the Go tokenizer.
func IntSliceToInt64Slice(input []int) []int64 {
	out := make([]int64, len(input))
	for i, v := range input {
		out[i] = int64(v)
	}
	return out
}

// Uint32SliceToInt64Slice widens token ids returned by the Rust tokenizer.
func Uint32SliceToInt64Slice(input []uint32) []int64 {
	out := make([]int64, len(input))
	for i, v := range input {
		out[i] = int64(v)
	}
	return out
}

// DurationToU64 converts a duration to an unsigned nanoseconds counter safely.
// Negative durations are mapped to 0.
func DurationToU64(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d) // #nosec G115
}

// U64ToDuration converts an unsigned nanoseconds count to time.Duration safely.
// Values larger than MaxInt64 are clamped to time.Duration(math.MaxInt64).
func U64ToDuration(u uint64) time.Duration {
	if u > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(int64(u))
}
