// Package store provides a SQLite-backed journal of graph sessions.
//
// A session is one lifetime of a graph. Within it the journal keeps:
//   - Events: every record pushed through the graph's event queue
//   - Transitions: every Stop/Pause/Run broadcast and whether it fully succeeded
//
// # Ordering
//
// Events and transitions share one logical sequence per session, assigned
// by a Sequencer at the moment the graph reports them. Wall-clock time is
// never stored, so a scenario replayed against a fresh journal produces an
// identical trace. All reads ORDER BY seq ASC.
//
// # Params
//
// Event params are opaque to the graph. The journal stores them as JSON
// text; values that cannot be encoded as JSON are stored as their %v
// rendering in a JSON string.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
