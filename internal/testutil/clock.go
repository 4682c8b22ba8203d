package testutil

import "sync"

// ManualTicks is a hand-driven tick counter for reference clock tests.
//
// Unlike the default monotonic source, ManualTicks only moves when the test
// calls Advance or Set, so Now() is fully deterministic. The counter is 32
// bits wide and wraps exactly like the production source.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualTicks struct {
	mu    sync.Mutex
	ticks uint32
}

// NewManualTicks creates a counter starting at start.
func NewManualTicks(start uint32) *ManualTicks {
	return &ManualTicks{ticks: start}
}

// Source returns the sampling function to hand to refclock.WithTickSource.
func (m *ManualTicks) Source() func() uint32 {
	return m.Current
}

// Advance moves the counter forward by n ticks, wrapping at 2^32.
func (m *ManualTicks) Advance(n uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks += n
}

// Set moves the counter to an absolute value.
func (m *ManualTicks) Set(v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = v
}

// Current returns the counter value.
func (m *ManualTicks) Current() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}
