package refclock

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/metrics"
)

// SubscriptionID identifies a timer subscription. Zero is never assigned;
// AdviseTime returns it when the signal was fired immediately.
type SubscriptionID uint64

// ReferenceClock is the clock surface consumed by stages and the graph.
type ReferenceClock interface {
	Now() Time
	AdviseTime(base, offset Time, sig OneShotSignal) (SubscriptionID, error)
	AdvisePeriodic(start, interval Time, sig CountingSignal) (SubscriptionID, error)
	Unadvise(id SubscriptionID)
}

// ErrClosed is wrapped by advise calls made after Close.
var ErrClosed = errors.New("reference clock closed")

// DefaultMaxWait bounds a single scheduler sleep. It also bounds how long
// the tick counter can go unsampled, which keeps wrap detection sound.
const DefaultMaxWait = time.Second

// Clock is the system reference clock.
//
// Thread-safety: every method is safe for concurrent use.
type Clock struct {
	logger  *slog.Logger
	metrics *metrics.Collector

	// time base
	timeMu    sync.Mutex
	ticks     TickSource
	tickUnit  Time
	lastTicks uint32
	base      Time

	// subscriptions
	mu     sync.Mutex
	table  *table
	nextID SubscriptionID
	closed bool

	maxWait time.Duration
	wake    chan struct{} // buffered 1; coalesces table changes
	quit    chan struct{}
	done    chan struct{}
	closeMu sync.Once
}

// Option configures a Clock.
type Option func(*Clock)

// WithTickSource replaces the monotonic counter. unit is the clock time one
// tick represents.
func WithTickSource(src TickSource, unit Time) Option {
	return func(c *Clock) {
		c.ticks = src
		c.tickUnit = unit
	}
}

// WithMaxWait bounds a single scheduler sleep.
func WithMaxWait(d time.Duration) Option {
	return func(c *Clock) {
		c.maxWait = d
	}
}

// WithLogger sets the clock's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Clock) {
		c.logger = l
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Clock) {
		c.metrics = m
	}
}

// New creates a Clock and starts its scheduler goroutine. The goroutine is
// running when New returns; Close stops and joins it.
func New(opts ...Option) (*Clock, error) {
	c := &Clock{
		logger:   slog.Default(),
		ticks:    MonotonicMicros(),
		tickUnit: Microsecond,
		table:    newTable(),
		maxWait:  DefaultMaxWait,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.ticks == nil || c.tickUnit <= 0 {
		return nil, errs.InvalidArgument("clock.new", "tick source and unit are required")
	}
	if c.maxWait <= 0 {
		return nil, errs.InvalidArgument("clock.new", "max wait must be positive")
	}

	c.lastTicks = c.ticks()

	started := make(chan struct{})
	go c.run(started)
	<-started

	c.logger.Debug("reference clock started", "max_wait", c.maxWait)
	return c, nil
}

// Now returns the current clock time. It accumulates unsigned deltas of the
// tick counter, so it never goes backward, including across counter wrap.
func (c *Clock) Now() Time {
	c.timeMu.Lock()
	defer c.timeMu.Unlock()

	t := c.ticks()
	delta := t - c.lastTicks
	c.lastTicks = t
	c.base += Time(delta) * c.tickUnit
	return c.base
}

// AdviseTime asks for sig to be fired once the clock reaches base+offset.
// If that time has already passed, sig fires immediately and the returned
// id is zero.
func (c *Clock) AdviseTime(base, offset Time, sig OneShotSignal) (SubscriptionID, error) {
	if isNilSignal(sig) {
		return 0, errs.InvalidArgument("clock.advise_time", "signal is nil")
	}

	if c.isClosed() {
		return 0, errs.Unexpected("clock.advise_time", "clock is closed", ErrClosed)
	}

	due := base + offset
	if c.Now() >= due {
		sig.Fire()
		c.metrics.TimerFired("oneshot")
		return 0, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errs.Unexpected("clock.advise_time", "clock is closed", ErrClosed)
	}
	c.nextID++
	id := c.nextID
	c.table.add(subscription{
		id:      id,
		kind:    kindOneShot,
		next:    due,
		oneShot: sig,
	})
	live := c.table.live
	c.mu.Unlock()

	c.metrics.SetSubscriptions(live)
	c.logger.Debug("advise time", "id", id, "due", due)
	c.poke()
	return id, nil
}

// AdvisePeriodic asks for one count to be released on sig at start and at
// every interval after it.
func (c *Clock) AdvisePeriodic(start, interval Time, sig CountingSignal) (SubscriptionID, error) {
	if isNilSignal(sig) {
		return 0, errs.InvalidArgument("clock.advise_periodic", "signal is nil")
	}
	if interval <= 0 {
		return 0, errs.InvalidArgument("clock.advise_periodic", "interval must be positive")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, errs.Unexpected("clock.advise_periodic", "clock is closed", ErrClosed)
	}
	c.nextID++
	id := c.nextID
	c.table.add(subscription{
		id:       id,
		kind:     kindPeriodic,
		next:     start,
		interval: interval,
		counter:  sig,
	})
	live := c.table.live
	c.mu.Unlock()

	c.metrics.SetSubscriptions(live)
	c.logger.Debug("advise periodic", "id", id, "start", start, "interval", interval)
	c.poke()
	return id, nil
}

// Unadvise cancels a subscription. Unknown or already-retired ids are a
// no-op. A firing already in flight is not retracted.
func (c *Clock) Unadvise(id SubscriptionID) {
	c.mu.Lock()
	removed := c.table.kill(id)
	live := c.table.live
	c.mu.Unlock()

	if !removed {
		return
	}
	c.metrics.SetSubscriptions(live)
	c.logger.Debug("unadvise", "id", id)
	c.poke()
}

// Pending returns the number of live subscriptions.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table.live
}

// Close stops the scheduler goroutine and waits for it to exit. Pending
// subscriptions are dropped without firing, and later advise calls fail
// with ErrClosed. Safe to call more than once.
func (c *Clock) Close() error {
	c.closeMu.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.quit)
	})
	<-c.done
	return nil
}

func (c *Clock) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// poke wakes the scheduler without blocking.
func (c *Clock) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run is the scheduler loop.
func (c *Clock) run(started chan<- struct{}) {
	defer close(c.done)

	timer := time.NewTimer(c.maxWait)
	defer timer.Stop()
	close(started)

	for {
		wait := c.schedulePass()
		timer.Reset(wait)

		select {
		case <-c.quit:
			c.logger.Debug("reference clock stopped")
			return
		case <-c.wake:
		case <-timer.C:
		}
	}
}

// firing is a signal collected under the lock and delivered after it.
type firing struct {
	oneShot OneShotSignal
	counter CountingSignal
	count   int64
}

// schedulePass fires everything due and returns how long to sleep.
func (c *Clock) schedulePass() time.Duration {
	now := c.Now()

	c.mu.Lock()
	c.table.sweep()

	var due []firing
	wait := c.maxWait
	for i := range c.table.slots {
		s := &c.table.slots[i]
		if s.state != slotLive {
			continue
		}

		if s.next <= now {
			switch s.kind {
			case kindOneShot:
				due = append(due, firing{oneShot: s.oneShot})
				c.table.retire(i)
				continue
			case kindPeriodic:
				n := int64((now-s.next)/s.interval) + 1
				s.next += Time(n) * s.interval
				if n > MaxSemaphoreCount {
					n = MaxSemaphoreCount
				}
				due = append(due, firing{counter: s.counter, count: n})
			}
		}

		if until := (s.next - now).Duration(); until < wait {
			wait = until
		}
	}
	live := c.table.live
	c.mu.Unlock()

	for _, f := range due {
		if f.oneShot != nil {
			f.oneShot.Fire()
			c.metrics.TimerFired("oneshot")
			continue
		}
		f.counter.Release(f.count)
		c.metrics.TimerFired("periodic")
		c.metrics.PeriodicReleased(f.count)
	}
	if len(due) > 0 {
		c.metrics.SetSubscriptions(live)
	}

	if wait < 0 {
		wait = 0
	}
	return wait
}

// isNilSignal catches both nil interfaces and typed nil pointers of the
// concrete signal types.
func isNilSignal(sig any) bool {
	switch s := sig.(type) {
	case nil:
		return true
	case *Event:
		return s == nil
	case *Semaphore:
		return s == nil
	}
	return false
}
