package graph

import (
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/metrics"
)

// Decision describes what the aggregator did with a stage event.
type Decision int

const (
	// PassedThrough means the record was queued unmodified.
	PassedThrough Decision = iota
	// Absorbed means a renderer's Complete was counted but not queued.
	Absorbed
	// Completed means the last renderer reported and one graph-level
	// Complete was queued in place of the stage's record.
	Completed
)

// Aggregator turns per-renderer Complete events into exactly one graph
// Complete event and latches a signal WaitForCompletion can block on.
//
// Renderers may report in any order. When a stage identifies itself in
// param2 (any comparable value), repeated reports from it are counted once.
//
// The aggregator's lock is separate from the queue's; pushing a record and
// updating the count are not atomic with respect to each other.
type Aggregator struct {
	push    func(events.Record)
	logger  *slog.Logger
	metrics *metrics.Collector

	mu              sync.Mutex
	expected        int
	observed        int
	reported        map[any]struct{}
	defaultHandling bool
	latch           *latch
}

// latch is closed once per run with the code that ended it.
type latch struct {
	done chan struct{}
	code events.Code
	set  bool
}

func newLatch() *latch {
	return &latch{done: make(chan struct{})}
}

// NewAggregator creates an aggregator that queues records through push.
func NewAggregator(push func(events.Record), logger *slog.Logger, m *metrics.Collector) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		push:            push,
		logger:          logger,
		metrics:         m,
		reported:        make(map[any]struct{}),
		defaultHandling: true,
		latch:           newLatch(),
	}
}

// Configure sets the number of renderers and resets the observed count.
func (a *Aggregator) Configure(expected int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expected = expected
	a.observed = 0
	clear(a.reported)
}

// Expected returns the configured renderer count.
func (a *Aggregator) Expected() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expected
}

// Observed returns how many renderers have reported since the last reset.
func (a *Aggregator) Observed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.observed
}

// SetDefaultHandling turns Complete aggregation on or off. With it off,
// every stage Complete is queued as-is and nothing is latched.
func (a *Aggregator) SetDefaultHandling(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.defaultHandling = enabled
}

// OnStageEvent routes one stage event.
func (a *Aggregator) OnStageEvent(code events.Code, param1, param2 any) Decision {
	record := events.Record{Code: code, Param1: param1, Param2: param2}

	switch code {
	case events.Complete:
		return a.onComplete(record)
	case events.ErrorAbort, events.UserAbort:
		a.push(record)
		a.setLatch(code)
		return PassedThrough
	}

	a.push(record)
	return PassedThrough
}

func (a *Aggregator) onComplete(record events.Record) Decision {
	a.mu.Lock()
	if !a.defaultHandling {
		a.mu.Unlock()
		a.push(record)
		return PassedThrough
	}

	if key, ok := stageKey(record.Param2); ok {
		if _, dup := a.reported[key]; dup {
			a.mu.Unlock()
			a.logger.Debug("duplicate renderer completion ignored", "stage", key)
			return Absorbed
		}
		a.reported[key] = struct{}{}
	}

	a.observed++
	done := a.observed == a.expected
	observed, expected := a.observed, a.expected
	a.mu.Unlock()

	a.logger.Debug("renderer completed", "observed", observed, "expected", expected)
	if !done {
		return Absorbed
	}

	a.push(events.Record{Code: events.Complete, Param1: nil, Param2: nil})
	a.setLatch(events.Complete)
	a.metrics.Completed()
	a.logger.Info("graph completed", "renderers", expected)
	return Completed
}

// OnGraphStateChange resets the count and the latch whenever the graph is
// not running, so the next Run can complete again.
func (a *Aggregator) OnGraphStateChange(s State) {
	if s == Running {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observed = 0
	clear(a.reported)
	if a.latch.set {
		a.latch = newLatch()
	}
}

// WaitForCompletion blocks until the graph completes or aborts, returning
// the latched code. A negative timeout waits forever.
func (a *Aggregator) WaitForCompletion(timeout time.Duration) (events.Code, error) {
	a.mu.Lock()
	l := a.latch
	a.mu.Unlock()

	if timeout < 0 {
		<-l.done
		return l.code, nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.done:
		return l.code, nil
	case <-t.C:
		return 0, errs.Timeout("graph.wait_for_completion")
	}
}

// Latched reports whether the current run has completed or aborted.
func (a *Aggregator) Latched() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latch.set
}

func (a *Aggregator) setLatch(code events.Code) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latch.set {
		return
	}
	a.latch.set = true
	a.latch.code = code
	close(a.latch.done)
}

// stageKey returns p as a map key when it can identify a stage.
func stageKey(p any) (any, bool) {
	if p == nil {
		return nil, false
	}
	// The dynamic value decides: a comparable struct can still hold a
	// slice behind an interface field.
	if !reflect.ValueOf(p).Comparable() {
		return nil, false
	}
	return p, true
}
