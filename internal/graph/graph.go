package graph

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/refclock"
)

// Graph ties the controller, the completion aggregator and the event queue
// together. Stages report through Graph.Notify; the application drives the
// graph through the embedded Controller and drains events with GetEvent.
type Graph struct {
	*Controller

	logger     *slog.Logger
	queue      *events.Queue
	bridge     *events.Bridge
	completion *Aggregator

	mu        sync.Mutex
	ownClock  *refclock.Clock
	retired   []*refclock.Clock // replaced clocks some stage still holds
	closeOnce sync.Once
}

// New creates an empty, stopped graph.
func New(opts ...Option) *Graph {
	cfg := newConfig(opts)

	q := events.NewQueue(
		events.WithGrowthIncrement(cfg.queueGrowth),
		events.WithQueueMetrics(cfg.metrics),
	)
	b := events.NewBridge(q, cfg.logger)

	g := &Graph{
		Controller: NewController(opts...),
		logger:     cfg.logger,
		queue:      q,
		bridge:     b,
	}
	g.completion = NewAggregator(b.Push, cfg.logger, cfg.metrics)

	g.Controller.SetSink(g)
	g.Controller.onStateChange = g.completion.OnGraphStateChange
	g.Controller.onStagesChanged = g.completion.Configure
	return g
}

// Notify is the event sink stages report through. Complete events from
// renderers are aggregated; everything else is queued unmodified.
func (g *Graph) Notify(code events.Code, param1, param2 any) error {
	g.completion.OnStageEvent(code, param1, param2)
	return nil
}

// GetEvent waits up to timeout for the next event. A negative timeout waits
// forever. The caller must pass the record to FreeEvent when done.
func (g *Graph) GetEvent(timeout time.Duration) (events.Record, error) {
	r, ok := g.queue.Pop(timeout)
	if !ok {
		return events.Record{}, errs.Timeout("graph.get_event")
	}
	return r, nil
}

// FreeEvent releases any payload the record owns.
func (g *Graph) FreeEvent(r events.Record) {
	events.ReleasePayload(r)
}

// WaitForCompletion blocks until every renderer has completed, or a stage
// aborted, and returns the code that ended the run.
func (g *Graph) WaitForCompletion(timeout time.Duration) (events.Code, error) {
	return g.completion.WaitForCompletion(timeout)
}

// SetNotifyWindow registers the target posted to for every event.
func (g *Graph) SetNotifyWindow(target events.Poster, message uint32, instance any) {
	g.bridge.SetNotifyWindow(target, message, instance)
}

// SetNotifyEnabled toggles posting to the notify target.
func (g *Graph) SetNotifyEnabled(enabled bool) {
	g.bridge.SetNotifyEnabled(enabled)
}

// SetNotifyFlags sets the notify flags (0 enabled, 1 disabled).
func (g *Graph) SetNotifyFlags(flags int) error {
	return g.bridge.SetNotifyFlags(flags)
}

// NotifyFlags returns the notify flags.
func (g *Graph) NotifyFlags() int {
	return g.bridge.NotifyFlags()
}

// CancelDefaultHandling stops the graph from aggregating code. Only
// Complete has default handling.
func (g *Graph) CancelDefaultHandling(code events.Code) error {
	if code != events.Complete {
		return errs.InvalidArgument("graph.cancel_default_handling", fmt.Sprintf("no default handling for %s", code))
	}
	g.completion.SetDefaultHandling(false)
	return nil
}

// RestoreDefaultHandling re-enables aggregation for code.
func (g *Graph) RestoreDefaultHandling(code events.Code) error {
	if code != events.Complete {
		return errs.InvalidArgument("graph.restore_default_handling", fmt.Sprintf("no default handling for %s", code))
	}
	g.completion.SetDefaultHandling(true)
	return nil
}

// AddEventObserver registers an observer for every queued event.
func (g *Graph) AddEventObserver(o events.Observer) {
	g.bridge.AddObserver(o)
}

// Completion exposes the aggregator for diagnostics.
func (g *Graph) Completion() *Aggregator {
	return g.completion
}

// Queue exposes the event queue.
func (g *Graph) Queue() *events.Queue {
	return g.queue
}

// SetDefaultSyncSource creates a system reference clock owned by the graph
// and installs it as the sync source. The clock is closed by Close.
//
// A previous graph-owned clock is closed at once only when every stage
// accepted the new one. Otherwise a stage may still have advice pending on
// it, so it stays open until Close.
func (g *Graph) SetDefaultSyncSource(opts ...refclock.Option) error {
	clock, err := refclock.New(opts...)
	if err != nil {
		return fmt.Errorf("create default clock: %w", err)
	}

	g.mu.Lock()
	prev := g.ownClock
	g.ownClock = clock
	g.mu.Unlock()

	err = g.SetSyncSource(clock)
	if prev == nil {
		return err
	}
	if err != nil {
		g.mu.Lock()
		g.retired = append(g.retired, prev)
		g.mu.Unlock()
		g.logger.Warn("previous clock kept open until close", "error", err)
		return err
	}
	_ = prev.Close()
	return nil
}

// StopWhenReady pauses the graph, waits up to timeout for every stage to
// settle, then stops it. Stop is attempted even if the wait fails.
func (g *Graph) StopWhenReady(timeout time.Duration) error {
	if err := g.Pause(); err != nil {
		g.logger.Warn("pause before stop failed", "error", err)
	}
	_, waitErr := g.GetState(timeout)
	if err := g.Stop(); err != nil {
		return err
	}
	if waitErr != nil && errs.IsTransitioning(waitErr) {
		return waitErr
	}
	return nil
}

// Close stops the graph and closes every stage that implements io.Closer.
// Queued events are dropped and graph-owned clocks closed. Safe to call
// more than once.
func (g *Graph) Close() error {
	var err error
	g.closeOnce.Do(func() {
		err = g.Stop()
		for _, e := range g.snapshot() {
			if c, ok := e.stage.(io.Closer); ok {
				if cerr := c.Close(); cerr != nil {
					g.logger.Warn("stage close failed", "stage", e.name, "error", cerr)
				}
			}
		}
		dropped := g.queue.Flush()

		g.mu.Lock()
		clocks := g.retired
		if g.ownClock != nil {
			clocks = append(clocks, g.ownClock)
		}
		g.ownClock, g.retired = nil, nil
		g.mu.Unlock()
		for _, c := range clocks {
			_ = c.Close()
		}
		g.logger.Debug("graph closed", "dropped_events", dropped)
	})
	return err
}
