package monitor

import (
	"math/rand/v2"
	"time"
)

// NextInterval draws a check interval uniformly from [lo, hi].
// When hi < lo the interval is exactly lo. A nil rng uses the global source.
func NextInterval(rng *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := int64(hi-lo) + 1
	if rng == nil {
		return lo + time.Duration(rand.Int64N(span))
	}
	return lo + time.Duration(rng.Int64N(span))
}
