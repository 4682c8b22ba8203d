package stage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
	"github.com/roach88/filtergraph/internal/refclock"
)

// Option configures a stage.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the stage logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// base holds what every renderer shares: run state, the graph it joined,
// its sync source and the cancel for the current run's waiter goroutine.
//
// Each Run starts a new generation; a waiter that wakes up for an older
// generation does nothing.
type base struct {
	logger *slog.Logger

	mu     sync.Mutex
	name   string
	state  graph.State
	sink   graph.Sink
	clock  refclock.ReferenceClock
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup // waiter goroutines; joined by Close
}

func newBase(name string, logger *slog.Logger) base {
	return base{name: name, logger: logger, state: graph.Stopped}
}

// JoinGraph implements graph.SinkAware.
func (b *base) JoinGraph(sink graph.Sink, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
	b.name = name
	b.logger = b.logger.With("stage", name)
}

// SetSyncSource implements graph.Stage. The clock cannot change while the
// stage is running.
func (b *base) SetSyncSource(clock refclock.ReferenceClock) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == graph.Running {
		return errs.InvalidArgument("stage.set_sync_source", "stage is running")
	}
	b.clock = clock
	return nil
}

// GetState implements graph.Stage. Renderers apply state changes
// synchronously, so they are never transitioning.
func (b *base) GetState(time.Duration) (graph.State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, nil
}

// Name returns the stage name.
func (b *base) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

// halt cancels the current run's waiter. Called with b.mu held.
func (b *base) halt() {
	b.gen++
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// spawn starts fn as the waiter for a new run. Called with b.mu held.
func (b *base) spawn(fn func(ctx context.Context, gen uint64)) {
	b.gen++
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	gen := b.gen
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn(ctx, gen)
	}()
}

// join waits for every waiter goroutine to exit. Must not be called with
// b.mu held: waiters take it before they return.
func (b *base) join() {
	b.wg.Wait()
}

// current reports whether gen is still the live run.
func (b *base) current(gen uint64) bool {
	return b.gen == gen && b.state == graph.Running
}

// notify sends an event through the joined graph, identifying the stage.
func (b *base) notify(code events.Code, param1 any) {
	b.mu.Lock()
	sink, name, logger := b.sink, b.name, b.logger
	b.mu.Unlock()
	if sink == nil {
		logger.Warn("stage event dropped, not in a graph", "code", code.String())
		return
	}
	if err := sink.Notify(code, param1, name); err != nil {
		logger.Warn("stage notify failed", "code", code.String(), "error", err)
	}
}
