package graph

import (
	"time"

	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/refclock"
)

// Stage is the capability surface the graph drives. The graph never calls
// anything else on a stage and never inspects its internals.
//
// GetState returns errs.ErrTransitioning (wrapped or not) while the stage is
// still applying its last requested state change.
type Stage interface {
	Stop() error
	Pause() error
	Run(start refclock.Time) error
	GetState(timeout time.Duration) (State, error)
	SetSyncSource(clock refclock.ReferenceClock) error
}

// Sink is the event surface exposed to stages.
type Sink interface {
	Notify(code events.Code, param1, param2 any) error
}

// SinkAware is implemented by stages that want the graph's event sink
// handed to them when they are added.
type SinkAware interface {
	JoinGraph(sink Sink, name string)
}

// StageOption configures a stage as it joins the graph.
type StageOption func(*stageEntry)

// AsRenderer marks the stage as a renderer: one of the stages whose
// Complete events are aggregated into the graph-level completion.
func AsRenderer() StageOption {
	return func(e *stageEntry) {
		e.renderer = true
	}
}

// WithRenderer sets the renderer flag explicitly.
func WithRenderer(renderer bool) StageOption {
	return func(e *stageEntry) {
		e.renderer = renderer
	}
}

type stageEntry struct {
	name     string
	stage    Stage
	renderer bool
}

// StageInfo describes a stage in join order.
type StageInfo struct {
	Name     string
	Renderer bool
}
