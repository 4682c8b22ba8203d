package events

import (
	"log/slog"
	"sync"

	"github.com/roach88/filtergraph/internal/errs"
)

// Notify flag values accepted by SetNotifyFlags.
const (
	NotifyEnabled  = 0
	NotifyDisabled = 1 // suppress window posts; events are still queued
)

// Poster receives the payload-free wake message posted for every event.
// The receiver must call back into the queue to learn what happened.
type Poster interface {
	PostMessage(msg uint32, instance any) error
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(msg uint32, instance any) error

// PostMessage calls f.
func (f PosterFunc) PostMessage(msg uint32, instance any) error {
	return f(msg, instance)
}

// Observer sees every record pushed through a Bridge, after it is queued.
type Observer interface {
	OnEvent(r Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(r Record)

// OnEvent calls f.
func (f ObserverFunc) OnEvent(r Record) { f(r) }

// Bridge fronts a Queue: every Push is queued, shown to observers and,
// when a target is registered and notification is enabled, announced to
// that target with a single opaque message.
//
// The bridge's lock only guards its own settings; it is released before
// calling the target or any observer.
type Bridge struct {
	queue  *Queue
	logger *slog.Logger

	mu        sync.Mutex
	target    Poster
	message   uint32
	instance  any
	flags     int
	observers []Observer
}

// NewBridge creates a Bridge over q with notification enabled and no target.
func NewBridge(q *Queue, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{queue: q, logger: logger}
}

// Queue returns the underlying queue.
func (b *Bridge) Queue() *Queue {
	return b.queue
}

// SetNotifyWindow registers the post target. A nil target disables posting.
func (b *Bridge) SetNotifyWindow(target Poster, message uint32, instance any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
	b.message = message
	b.instance = instance
}

// SetNotifyEnabled toggles posting without forgetting the target.
func (b *Bridge) SetNotifyEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if enabled {
		b.flags = NotifyEnabled
	} else {
		b.flags = NotifyDisabled
	}
}

// SetNotifyFlags accepts NotifyEnabled or NotifyDisabled; any other value is
// rejected with an invalid-argument error and leaves the setting unchanged.
func (b *Bridge) SetNotifyFlags(flags int) error {
	if flags != NotifyEnabled && flags != NotifyDisabled {
		return errs.InvalidArgument("events.set_notify_flags", "flags must be 0 or 1")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags = flags
	return nil
}

// NotifyFlags returns the current flag value.
func (b *Bridge) NotifyFlags() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flags
}

// AddObserver registers an observer. Observers are never removed.
func (b *Bridge) AddObserver(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Push queues r, then notifies observers and the post target.
func (b *Bridge) Push(r Record) {
	b.queue.Push(r)

	b.mu.Lock()
	target, msg, instance := b.target, b.message, b.instance
	post := target != nil && b.flags == NotifyEnabled
	observers := b.observers
	b.mu.Unlock()

	for _, o := range observers {
		o.OnEvent(r)
	}

	if !post {
		return
	}
	if err := target.PostMessage(msg, instance); err != nil {
		b.logger.Warn("event notify post failed",
			"code", r.Code.String(),
			"message", msg,
			"error", err,
		)
	}
}
