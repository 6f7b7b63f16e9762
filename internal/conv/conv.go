// Package conv provides checked integer conversions.
//
// Snapshot and shard-file headers store counts and lengths as fixed-width
// unsigned integers; values coming back from disk are untrusted and must not
// wrap when converted to Go's platform-dependent int. Conversions that are
// provably in range (loop indices, bounded counters) should use direct casts
// instead.
package conv

import (
	"fmt"
	"math"
)

// IntToUint32 converts v to uint32, failing on negative or out-of-range
// values.
func IntToUint32(v int) (uint32, error) {
	if v < 0 {
		return 0, fmt.Errorf("conv: %d is negative", v)
	}

	if uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("conv: %d exceeds uint32 range", v)
	}

	return uint32(v), nil
}

// IntToUint64 converts v to uint64, failing on negative values.
func IntToUint64(v int) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("conv: %d is negative", v)
	}

	return uint64(v), nil
}

// Uint32ToInt converts v to int, failing when it does not fit.
func Uint32ToInt(v uint32) (int, error) {
	if uint64(v) > uint64(math.MaxInt) {
		return 0, fmt.Errorf("conv: %d exceeds int range", v)
	}

	return int(v), nil
}

// Uint64ToInt converts v to int, failing when it does not fit.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("conv: %d exceeds int range", v)
	}

	return int(v), nil
}
