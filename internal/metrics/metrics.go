// Package metrics exposes Prometheus instrumentation for the clock, the event
// queue and the graph controller.
//
// A nil *Collector is valid and records nothing, so components take one
// through an option and never need to nil-check.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "filtergraph"

// Collector holds every metric the engine reports.
type Collector struct {
	TimerFires       *prometheus.CounterVec
	PeriodicReleases prometheus.Counter
	Subscriptions    prometheus.Gauge
	EventsPushed     *prometheus.CounterVec
	QueueGrowths     prometheus.Counter
	QueueDepth       prometheus.Gauge
	Transitions      *prometheus.CounterVec
	StageFailures    *prometheus.CounterVec
	Completions      prometheus.Counter
}

// New creates a Collector and registers it on reg. A nil reg registers
// nothing, which keeps tests free of global registry collisions.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		TimerFires: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "clock",
				Name:      "timer_fires_total",
				Help:      "Timer subscriptions signaled by the clock scheduler",
			},
			[]string{"kind"},
		),
		PeriodicReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clock",
			Name:      "periodic_releases_total",
			Help:      "Counts released on periodic counting signals",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "clock",
			Name:      "live_subscriptions",
			Help:      "Live timer subscriptions",
		}),
		EventsPushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "pushed_total",
				Help:      "Event records pushed to the event queue",
			},
			[]string{"code"},
		),
		QueueGrowths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "queue_growths_total",
			Help:      "Times the event ring buffer was grown",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "queue_depth",
			Help:      "Unread event records",
		}),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "transitions_total",
				Help:      "Graph state transitions requested",
			},
			[]string{"target", "result"},
		),
		StageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "stage_failures_total",
				Help:      "Per-stage failures during broadcasts",
			},
			[]string{"op"},
		),
		Completions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "completions_total",
			Help:      "Aggregated graph completion events emitted",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.TimerFires,
			c.PeriodicReleases,
			c.Subscriptions,
			c.EventsPushed,
			c.QueueGrowths,
			c.QueueDepth,
			c.Transitions,
			c.StageFailures,
			c.Completions,
		)
	}
	return c
}

// TimerFired records a one-shot or periodic firing.
func (c *Collector) TimerFired(kind string) {
	if c == nil {
		return
	}
	c.TimerFires.WithLabelValues(kind).Inc()
}

// PeriodicReleased records n counts released on a counting signal.
func (c *Collector) PeriodicReleased(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.PeriodicReleases.Add(float64(n))
}

// SetSubscriptions sets the live subscription gauge.
func (c *Collector) SetSubscriptions(n int) {
	if c == nil {
		return
	}
	c.Subscriptions.Set(float64(n))
}

// EventPushed records a pushed event and the resulting queue depth.
func (c *Collector) EventPushed(code string, depth int) {
	if c == nil {
		return
	}
	c.EventsPushed.WithLabelValues(code).Inc()
	c.QueueDepth.Set(float64(depth))
}

// SetQueueDepth sets the queue depth gauge.
func (c *Collector) SetQueueDepth(depth int) {
	if c == nil {
		return
	}
	c.QueueDepth.Set(float64(depth))
}

// QueueGrown records a ring buffer growth.
func (c *Collector) QueueGrown() {
	if c == nil {
		return
	}
	c.QueueGrowths.Inc()
}

// Transition records a requested graph transition and its outcome.
func (c *Collector) Transition(target string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.Transitions.WithLabelValues(target, result).Inc()
}

// StageFailed records a single stage failure during a broadcast.
func (c *Collector) StageFailed(op string) {
	if c == nil {
		return
	}
	c.StageFailures.WithLabelValues(op).Inc()
}

// Completed records an aggregated completion event.
func (c *Collector) Completed() {
	if c == nil {
		return
	}
	c.Completions.Inc()
}
