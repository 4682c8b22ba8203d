package graph

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/metrics"
	"github.com/roach88/filtergraph/internal/refclock"
)

// DefaultPollInterval is the sleep between GetState polling passes.
const DefaultPollInterval = 10 * time.Millisecond

// TransitionObserver is told about every requested state transition that
// actually broadcast to the stages (no-op requests are not reported).
type TransitionObserver interface {
	OnTransition(target State, err error)
}

// TransitionObserverFunc adapts a function to TransitionObserver.
type TransitionObserverFunc func(target State, err error)

// OnTransition calls f.
func (f TransitionObserverFunc) OnTransition(target State, err error) { f(target, err) }

type config struct {
	logger       *slog.Logger
	metrics      *metrics.Collector
	pollInterval time.Duration
	queueGrowth  int
}

// Option configures a Controller or Graph.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithPollInterval sets the GetState polling increment.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithQueueGrowth sets the event queue growth increment (Graph only).
func WithQueueGrowth(n int) Option {
	return func(c *config) {
		c.queueGrowth = n
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		queueGrowth:  events.DefaultGrowthIncrement,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Controller drives every stage of a graph through Stop, Pause and Run and
// reports the aggregate state.
//
// Broadcasts are best-effort: every stage is called in join order even if
// an earlier one fails, the first failure is returned as a PartialFailure,
// and the graph's own state is set to the target regardless. GetState is
// the source of truth for whether the stages actually converged.
//
// Thread-safety: all methods are safe for concurrent use. The controller's
// lock guards its own fields only and is never held while calling a stage.
type Controller struct {
	logger       *slog.Logger
	metrics      *metrics.Collector
	pollInterval time.Duration

	mu         sync.Mutex
	state      State
	stages     []*stageEntry
	syncSource refclock.ReferenceClock
	sink       Sink
	observers  []TransitionObserver

	// Set by Graph; called without c.mu held.
	onStateChange   func(State)
	onStagesChanged func(renderers int)
}

// NewController creates a Controller in the Stopped state with no stages.
func NewController(opts ...Option) *Controller {
	cfg := newConfig(opts)
	return &Controller{
		logger:       cfg.logger,
		metrics:      cfg.metrics,
		pollInterval: cfg.pollInterval,
		state:        Stopped,
	}
}

// SetSink sets the event sink used for ClockChanged and handed to
// SinkAware stages as they join.
func (c *Controller) SetSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}

// AddTransitionObserver registers a transition observer.
func (c *Controller) AddTransitionObserver(o TransitionObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// AddStage appends a stage in join order. Names are NFC normalized and must
// be unique. If the graph has a sync source, the stage is handed it.
func (c *Controller) AddStage(name string, stage Stage, opts ...StageOption) error {
	name = norm.NFC.String(name)
	if name == "" {
		return errs.InvalidArgument("graph.add_stage", "stage name is required")
	}
	if stage == nil {
		return errs.InvalidArgument("graph.add_stage", "stage is nil")
	}

	entry := &stageEntry{name: name, stage: stage}
	for _, opt := range opts {
		opt(entry)
	}

	c.mu.Lock()
	for _, e := range c.stages {
		if e.name == name {
			c.mu.Unlock()
			return errs.InvalidArgument("graph.add_stage", fmt.Sprintf("duplicate stage name %q", name))
		}
	}
	c.stages = append(c.stages, entry)
	clock := c.syncSource
	sink := c.sink
	renderers := c.renderersLocked()
	hook := c.onStagesChanged
	c.mu.Unlock()

	if aware, ok := stage.(SinkAware); ok && sink != nil {
		aware.JoinGraph(sink, name)
	}
	if clock != nil {
		if err := stage.SetSyncSource(clock); err != nil {
			c.logger.Warn("stage rejected sync source", "stage", name, "error", err)
		}
	}
	if hook != nil {
		hook(renderers)
	}

	c.logger.Debug("stage added", "stage", name, "renderer", entry.renderer)
	return nil
}

// RemoveStage removes a stage by name. Callers are expected to stop the
// graph first; removing from a running graph is allowed but logged.
func (c *Controller) RemoveStage(name string) error {
	name = norm.NFC.String(name)

	c.mu.Lock()
	idx := -1
	for i, e := range c.stages {
		if e.name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return errs.InvalidArgument("graph.remove_stage", fmt.Sprintf("unknown stage %q", name))
	}
	state := c.state
	c.stages = append(c.stages[:idx:idx], c.stages[idx+1:]...)
	renderers := c.renderersLocked()
	hook := c.onStagesChanged
	c.mu.Unlock()

	if state != Stopped {
		c.logger.Warn("stage removed while graph not stopped", "stage", name, "state", state.String())
	}
	if hook != nil {
		hook(renderers)
	}
	return nil
}

// Stages lists stages in join order.
func (c *Controller) Stages() []StageInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StageInfo, len(c.stages))
	for i, e := range c.stages {
		out[i] = StageInfo{Name: e.name, Renderer: e.renderer}
	}
	return out
}

// Renderers returns the number of stages marked as renderers.
func (c *Controller) Renderers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderersLocked()
}

// State returns the graph's authoritative state without polling stages.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SyncSource returns the current sync source, or nil.
func (c *Controller) SyncSource() refclock.ReferenceClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncSource
}

// Stop stops every stage. A no-op when already stopped.
func (c *Controller) Stop() error {
	return c.transition(Stopped, "graph.stop", func(s Stage) error {
		return s.Stop()
	})
}

// Pause pauses every stage. A no-op when already paused.
func (c *Controller) Pause() error {
	return c.transition(Paused, "graph.pause", func(s Stage) error {
		return s.Pause()
	})
}

// Run runs every stage from start. A stopped graph is paused first and Run
// fails fast if that pause fails. NoStartTime resolves to the sync source's
// Now(); without a sync source it is passed through unchanged. Every stage
// receives the same start time. A no-op when already running.
func (c *Controller) Run(start refclock.Time) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == Running {
		return nil
	}
	if state == Stopped {
		if err := c.Pause(); err != nil {
			return fmt.Errorf("implicit pause before run: %w", err)
		}
	}

	if start == NoStartTime {
		if clock := c.SyncSource(); clock != nil {
			start = clock.Now()
		}
	}

	return c.transition(Running, "graph.run", func(s Stage) error {
		return s.Run(start)
	})
}

// GetState polls every stage with a zero timeout until none reports
// Transitioning or timeout elapses. A negative timeout waits forever.
//
// It returns the graph's authoritative state together with the result of
// the last polling pass: nil, a Transitioning error if the deadline passed
// first, or a PartialFailure wrapping the first stage error.
func (c *Controller) GetState(timeout time.Duration) (State, error) {
	remaining := timeout
	for {
		stages := c.snapshot()

		transitioning := false
		var first error
		for _, e := range stages {
			_, err := e.stage.GetState(0)
			switch {
			case err == nil:
			case errs.IsTransitioning(err):
				transitioning = true
			case first == nil:
				first = fmt.Errorf("stage %s: %w", e.name, err)
			}
		}

		if !transitioning {
			if first != nil {
				return c.State(), errs.PartialFailure("graph.get_state", first)
			}
			return c.State(), nil
		}
		if remaining == 0 {
			return c.State(), errs.Transitioning("graph.get_state")
		}

		step := c.pollInterval
		if remaining > 0 && remaining < step {
			step = remaining
		}
		time.Sleep(step)
		if remaining > 0 {
			remaining -= step
		}
	}
}

// SetSyncSource replaces the graph's clock and forwards it to every stage.
// A ClockChanged event is sent through the sink whatever the stages say.
func (c *Controller) SetSyncSource(clock refclock.ReferenceClock) error {
	c.mu.Lock()
	c.syncSource = clock
	stages := c.snapshotLocked()
	sink := c.sink
	c.mu.Unlock()

	err := c.broadcast("graph.set_sync_source", stages, func(s Stage) error {
		return s.SetSyncSource(clock)
	})

	if sink != nil {
		if nerr := sink.Notify(events.ClockChanged, nil, nil); nerr != nil {
			c.logger.Warn("clock changed notification failed", "error", nerr)
		}
	}
	return err
}

// transition broadcasts call to every stage unless the graph is already in
// target, then records target as the graph state.
func (c *Controller) transition(target State, op string, call func(Stage) error) error {
	c.mu.Lock()
	if c.state == target {
		c.mu.Unlock()
		return nil
	}
	stages := c.snapshotLocked()
	c.mu.Unlock()

	err := c.broadcast(op, stages, call)

	c.mu.Lock()
	c.state = target
	observers := c.observers
	hook := c.onStateChange
	c.mu.Unlock()

	c.metrics.Transition(target.String(), err)
	if err != nil {
		c.logger.Warn("graph transition partially failed", "target", target.String(), "error", err)
	} else {
		c.logger.Info("graph transition", "target", target.String(), "stages", len(stages))
	}

	if hook != nil {
		hook(target)
	}
	for _, o := range observers {
		o.OnTransition(target, err)
	}
	return err
}

// broadcast calls every stage in order, keeping the first failure.
func (c *Controller) broadcast(op string, stages []*stageEntry, call func(Stage) error) error {
	var first error
	for _, e := range stages {
		if err := call(e.stage); err != nil {
			c.metrics.StageFailed(op)
			c.logger.Warn("stage call failed", "op", op, "stage", e.name, "error", err)
			if first == nil {
				first = fmt.Errorf("stage %s: %w", e.name, err)
			}
		}
	}
	if first != nil {
		return errs.PartialFailure(op, first)
	}
	return nil
}

func (c *Controller) snapshot() []*stageEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() []*stageEntry {
	out := make([]*stageEntry, len(c.stages))
	copy(out, c.stages)
	return out
}

func (c *Controller) renderersLocked() int {
	n := 0
	for _, e := range c.stages {
		if e.renderer {
			n++
		}
	}
	return n
}
