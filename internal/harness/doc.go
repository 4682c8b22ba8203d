// Package harness provides conformance testing for the filter graph.
//
// The harness builds a graph out of recording stages, drives it through a
// scripted sequence of control and stage actions, journals everything the
// graph does into an in-memory store, and checks the result.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	stages:
//	  - name: source
//	  - name: video
//	    renderer: true
//	    fail: [stop]
//	    transitioning_polls: 2
//	steps:
//	  - action: run
//	  - action: complete
//	    stage: video
//	  - action: wait_completion
//	    timeout_ms: 100
//	    expect: Complete
//	assertions:
//	  - type: completion_count
//	    count: 1
//	  - type: final_state
//	    state: running
//
// # Assertion Types
//
//   - event_count: Events with a code were queued exactly N times
//   - event_order: Event codes appear in the specified order
//   - final_state: The graph ended in the given state
//   - call_order: Stage calls appear in the specified order
//   - completion_count: Exactly N graph-level completions were queued
//
// # Deterministic Testing
//
// The harness uses:
//   - Fixed session ids (from scenario.session, or "test-session-default")
//   - A hand-driven reference clock for set_sync_source
//   - Logical seq numbers from the journal, never wall time
//   - In-memory SQLite database (isolated per scenario)
//
// This ensures identical traces across runs for golden file comparison.
package harness
