package store

import "sync/atomic"

// Sequencer hands out the logical sequence numbers that order a session's
// journal entries.
//
// Every entry is stamped with a strictly increasing seq from this counter,
// so ordering never depends on wall-clock time and replaying a scenario
// produces the same trace.
//
// Thread-safety: Sequencer is safe for concurrent use (atomic operations).
type Sequencer struct {
	seq atomic.Int64
}

// NewSequencer creates a sequencer starting at 0.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// NewSequencerAt creates a sequencer that continues after start.
// Used to append to an existing session.
func NewSequencerAt(start int64) *Sequencer {
	s := &Sequencer{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
// Calls are linearizable - each call returns a unique, increasing value.
func (s *Sequencer) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (s *Sequencer) Current() int64 {
	return s.seq.Load()
}
