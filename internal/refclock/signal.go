package refclock

import (
	"context"
	"math"
	"sync"
	"time"
)

// OneShotSignal is fired once by the scheduler when a time advise is due.
type OneShotSignal interface {
	Fire()
}

// CountingSignal accumulates counts released by a periodic advise.
type CountingSignal interface {
	Release(n int64)
}

// MaxSemaphoreCount bounds the counts a single periodic firing may release
// and the count a Semaphore may hold.
const MaxSemaphoreCount int64 = math.MaxInt32

// Event is a single-fire, manual-reset wakeup. Firing more than once is a
// no-op; every waiter observes the first Fire.
type Event struct {
	once sync.Once
	done chan struct{}
}

// NewEvent creates an unfired Event.
func NewEvent() *Event {
	return &Event{done: make(chan struct{})}
}

// Fire signals the event. Safe to call from any goroutine, any number of times.
func (e *Event) Fire() {
	e.once.Do(func() { close(e.done) })
}

// Done returns a channel closed when the event fires.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Fired reports whether the event has fired.
func (e *Event) Fired() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the event fires or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTimeout blocks up to d and reports whether the event fired.
func (e *Event) WaitTimeout(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.done:
		return true
	case <-t.C:
		return false
	}
}

// Semaphore is a counting signal. Release adds counts (saturating at
// MaxSemaphoreCount); Acquire consumes them one at a time.
type Semaphore struct {
	mu       sync.Mutex
	count    int64
	released int64
	avail    chan struct{} // holds a token while count > 0
}

// NewSemaphore creates a Semaphore holding no counts.
func NewSemaphore() *Semaphore {
	return &Semaphore{avail: make(chan struct{}, 1)}
}

// Release adds n counts. Non-positive n is ignored.
func (s *Semaphore) Release(n int64) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > MaxSemaphoreCount-s.count {
		s.count = MaxSemaphoreCount
	} else {
		s.count += n
	}
	s.released += n

	select {
	case s.avail <- struct{}{}:
	default:
	}
}

// TryAcquire consumes one count if available.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return false
	}
	s.count--
	if s.count > 0 {
		select {
		case s.avail <- struct{}{}:
		default:
		}
	} else {
		select {
		case <-s.avail:
		default:
		}
	}
	return true
}

// Acquire blocks until a count is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	for {
		if s.TryAcquire() {
			return nil
		}
		select {
		case <-s.avail:
			// TryAcquire re-arms the token while counts remain.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Count returns the counts currently held.
func (s *Semaphore) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Released returns the cumulative counts ever released, including any that
// were already acquired.
func (s *Semaphore) Released() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}
