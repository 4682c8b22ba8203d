package refclock

import (
	"math"
	"time"
)

// Time is a count of 100 ns units since an epoch fixed at clock creation.
type Time int64

// Time constants.
const (
	Unit        Time = 1
	Microsecond Time = 10
	Millisecond Time = 10_000
	Second      Time = 10_000_000

	// MaxTime is the largest representable Time.
	MaxTime Time = math.MaxInt64
)

// FromDuration converts a time.Duration to clock units, truncating.
func FromDuration(d time.Duration) Time {
	return Time(d / 100)
}

// Duration converts t to a time.Duration, saturating on overflow.
func (t Time) Duration() time.Duration {
	if t > Time(math.MaxInt64/100) {
		return time.Duration(math.MaxInt64)
	}
	if t < Time(math.MinInt64/100) {
		return time.Duration(math.MinInt64)
	}
	return time.Duration(t) * 100
}

// Milliseconds returns t in whole milliseconds.
func (t Time) Milliseconds() int64 {
	return int64(t / Millisecond)
}

// TickSource samples a wrapping monotonic counter. Consecutive samples are
// subtracted as unsigned 32-bit values, so a wrap between two samples is
// harmless as long as the counter is sampled at least once per wrap period.
type TickSource func() uint32

// MonotonicMicros returns a TickSource counting microseconds on the Go
// monotonic clock, truncated to 32 bits (wraps every ~71 minutes).
func MonotonicMicros() TickSource {
	start := time.Now()
	return func() uint32 {
		return uint32(time.Since(start).Microseconds())
	}
}
