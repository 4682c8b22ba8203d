package stage

import (
	"context"
	"fmt"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
	"github.com/roach88/filtergraph/internal/refclock"
)

// TickRenderer renders a fixed number of ticks, one per interval, from a
// periodic clock subscription, then reports Complete.
//
// Ticks rendered before a Pause count toward the total; Stop resets it.
// With notifyTicks set, each rendered tick is also reported as a Time
// event carrying the tick number.
type TickRenderer struct {
	base

	interval    refclock.Time
	total       int
	notifyTicks bool

	// guarded by base.mu
	rendered int
	adviseID refclock.SubscriptionID
}

// NewTickRenderer returns a renderer that completes after total ticks.
func NewTickRenderer(name string, interval refclock.Time, total int, opts ...Option) (*TickRenderer, error) {
	if interval <= 0 {
		return nil, errs.InvalidArgument("tick.new", "interval must be positive")
	}
	if total <= 0 {
		return nil, errs.InvalidArgument("tick.new", "total must be positive")
	}
	o := newOptions(opts)
	return &TickRenderer{
		base:     newBase(name, o.logger),
		interval: interval,
		total:    total,
	}, nil
}

// NotifyTicks turns per-tick Time events on or off.
func (r *TickRenderer) NotifyTicks(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifyTicks = on
}

// Rendered returns the ticks rendered since the last Stop.
func (r *TickRenderer) Rendered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rendered
}

// Stop implements graph.Stage.
func (r *TickRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unadviseLocked()
	r.halt()
	r.state = graph.Stopped
	r.rendered = 0
	return nil
}

// Close stops the renderer and waits for its waiter goroutine to exit.
func (r *TickRenderer) Close() error {
	err := r.Stop()
	r.join()
	return err
}

// Pause implements graph.Stage.
func (r *TickRenderer) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unadviseLocked()
	r.halt()
	r.state = graph.Paused
	return nil
}

// Run implements graph.Stage. The first tick renders one interval after
// start.
func (r *TickRenderer) Run(start refclock.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == graph.Running {
		return nil
	}
	if r.clock == nil {
		return errs.InvalidArgument("tick.run", "no sync source")
	}
	if start == graph.NoStartTime {
		start = r.clock.Now()
	}

	r.state = graph.Running
	if r.rendered >= r.total {
		return nil
	}

	sem := refclock.NewSemaphore()
	id, err := r.clock.AdvisePeriodic(start+r.interval, r.interval, sem)
	if err != nil {
		r.state = graph.Paused
		return fmt.Errorf("advise ticks: %w", err)
	}
	r.adviseID = id

	r.spawn(func(ctx context.Context, gen uint64) {
		for {
			if err := sem.Acquire(ctx); err != nil {
				return
			}
			done, tick, notify := r.renderTick(gen)
			if tick == 0 {
				return
			}
			if notify {
				r.notify(events.Time, tick)
			}
			if done {
				r.logger.Debug("ticks rendered", "total", tick)
				r.notify(events.Complete, nil)
				return
			}
		}
	})
	return nil
}

// renderTick counts one tick for run gen. It returns tick 0 when gen is no
// longer the live run.
func (r *TickRenderer) renderTick(gen uint64) (done bool, tick int, notify bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.current(gen) || r.rendered >= r.total {
		return false, 0, false
	}
	r.rendered++
	done = r.rendered == r.total
	if done {
		r.unadviseLocked()
	}
	return done, r.rendered, r.notifyTicks
}

func (r *TickRenderer) unadviseLocked() {
	if r.adviseID != 0 && r.clock != nil {
		r.clock.Unadvise(r.adviseID)
	}
	r.adviseID = 0
}
