package events

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/metrics"
)

// DefaultGrowthIncrement is the initial ring size and the number of slots
// added each time the ring fills up.
const DefaultGrowthIncrement = 64

// Queue is a growable ring buffer of event records with a readiness signal.
//
// Any number of goroutines may Push. Pop is designed for a single consumer
// but stays correct with several: a consumer that wakes to an empty ring
// simply reports nothing.
//
// Records are kept in [head, tail) modulo len(buf); head == tail means empty,
// so one slot is always unused.
type Queue struct {
	mu     sync.Mutex
	buf    []Record
	head   int
	tail   int
	growth int

	// ready holds a token while the ring is non-empty (buffered, size 1).
	ready chan struct{}

	metrics *metrics.Collector
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithGrowthIncrement sets the initial ring size and growth step.
// Values below 2 are ignored.
func WithGrowthIncrement(n int) QueueOption {
	return func(q *Queue) {
		if n >= 2 {
			q.growth = n
		}
	}
}

// WithQueueMetrics attaches a metrics collector.
func WithQueueMetrics(m *metrics.Collector) QueueOption {
	return func(q *Queue) {
		q.metrics = m
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		growth: DefaultGrowthIncrement,
		ready:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.buf = make([]Record, q.growth)
	return q
}

// Push appends r and signals readiness. Payloads owned by r are retained
// before it is queued. Push never fails; a full ring is grown in place.
func (q *Queue) Push(r Record) {
	RetainPayload(r)

	q.mu.Lock()
	if q.next(q.tail) == q.head {
		q.grow()
	}
	q.buf[q.tail] = r
	q.tail = q.next(q.tail)
	depth := q.lenLocked()
	q.mu.Unlock()

	q.signal()
	q.metrics.EventPushed(r.Code.String(), depth)
}

// Pop waits up to timeout for a record and removes the oldest one.
// A negative timeout waits forever; zero polls.
func (q *Queue) Pop(timeout time.Duration) (Record, bool) {
	if !q.waitReady(timeout) {
		return Record{}, false
	}
	return q.take()
}

// PopContext waits until a record is available or ctx is done.
func (q *Queue) PopContext(ctx context.Context) (Record, bool) {
	select {
	case <-q.ready:
	case <-ctx.Done():
		return Record{}, false
	}
	return q.take()
}

// WaitForTerminal pops and frees records until a terminal code (Complete,
// UserAbort, ErrorAbort) arrives or timeout elapses. It returns the
// terminal code and how many records were drained, including the terminal
// one. A negative timeout waits forever.
func (q *Queue) WaitForTerminal(timeout time.Duration) (Code, int, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	drained := 0
	for {
		wait := time.Duration(-1)
		if timeout >= 0 {
			wait = time.Until(deadline)
			if wait < 0 {
				wait = 0
			}
		}

		r, ok := q.Pop(wait)
		if !ok {
			if timeout >= 0 && !time.Now().Before(deadline) {
				return 0, drained, errs.Timeout("queue.wait_for_terminal")
			}
			continue
		}

		drained++
		ReleasePayload(r)
		if r.Code.IsTerminal() {
			return r.Code, drained, nil
		}
	}
}

// Flush discards every queued record, releasing owned payloads.
func (q *Queue) Flush() int {
	q.mu.Lock()
	var dropped []Record
	for q.head != q.tail {
		dropped = append(dropped, q.buf[q.head])
		q.buf[q.head] = Record{}
		q.head = q.next(q.head)
	}
	q.head, q.tail = 0, 0
	select {
	case <-q.ready:
	default:
	}
	q.mu.Unlock()

	for _, r := range dropped {
		ReleasePayload(r)
	}
	q.metrics.SetQueueDepth(0)
	return len(dropped)
}

// Len returns the number of unread records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Cap returns the current ring size.
func (q *Queue) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// take removes the oldest record after a readiness token was consumed.
func (q *Queue) take() (Record, bool) {
	q.mu.Lock()
	if q.head == q.tail {
		q.mu.Unlock()
		return Record{}, false
	}

	r := q.buf[q.head]
	// Clear the slot so payloads are not pinned by the ring.
	q.buf[q.head] = Record{}
	q.head = q.next(q.head)
	depth := q.lenLocked()
	if depth > 0 {
		q.signal()
	}
	q.mu.Unlock()

	q.metrics.SetQueueDepth(depth)
	return r, true
}

// grow enlarges the ring by one increment, copying unread records to the
// front of the new buffer. Caller holds q.mu.
func (q *Queue) grow() {
	nb := make([]Record, len(q.buf)+q.growth)
	var n int
	if q.head <= q.tail {
		n = copy(nb, q.buf[q.head:q.tail])
	} else {
		n = copy(nb, q.buf[q.head:])
		n += copy(nb[n:], q.buf[:q.tail])
	}
	q.buf = nb
	q.head = 0
	q.tail = n
	q.metrics.QueueGrown()
}

func (q *Queue) next(i int) int {
	i++
	if i == len(q.buf) {
		return 0
	}
	return i
}

func (q *Queue) lenLocked() int {
	if q.tail >= q.head {
		return q.tail - q.head
	}
	return len(q.buf) - q.head + q.tail
}

// signal sets the readiness token without blocking.
func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// waitReady consumes the readiness token, waiting up to timeout.
func (q *Queue) waitReady(timeout time.Duration) bool {
	switch {
	case timeout < 0:
		<-q.ready
		return true
	case timeout == 0:
		select {
		case <-q.ready:
			return true
		default:
			return false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-q.ready:
		return true
	case <-t.C:
		return false
	}
}
