// Package refclock implements the reference clock shared by a filter graph.
//
// The clock hands out monotonically increasing timestamps (Time, in 100 ns
// units) and lets callers be signaled at or after a given time, either once
// (AdviseTime) or repeatedly (AdvisePeriodic).
//
// ARCHITECTURE:
//
// Single Scheduler Goroutine:
// One goroutine, started by New and joined by Close, owns all firing. It
// loops over:
//  1. Sample Now()
//  2. Fire every due subscription (one-shot: Fire and retire; periodic:
//     release one count per elapsed interval in a single Release call)
//  3. Compute the shortest time-until-due across live subscriptions,
//     clamped to MaxWait
//  4. Sleep until that deadline, a wake-up, or shutdown
//
// Advise and Unadvise only take the table lock briefly and post a
// non-blocking wake, so they never block on the scheduler. The wake channel
// has a buffer of one: any number of table changes between two passes
// coalesce into a single re-scan.
//
// Subscription Table:
// Slots live in a growable slice. Unadvise marks a slot dead; the next
// scheduler pass sweeps dead slots onto a free list and Advise reuses them.
// Ids are never reused, so a stale id can only ever match nothing.
//
// Cancellation:
// Signals are fired after the table lock is released. A subscription that is
// unadvised while its firing is in flight may still deliver one late signal.
package refclock
