package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
	"github.com/roach88/filtergraph/internal/refclock"
	"github.com/roach88/filtergraph/internal/store"
	"github.com/roach88/filtergraph/internal/testutil"
)

// Harness holds one scenario's graph, its recording stages and the
// deterministic clock handed out by set_sync_source.
type Harness struct {
	graph  *graph.Graph
	stages map[string]*testutil.RecordingStage
	ticks  *testutil.ManualTicks
	clock  *refclock.Clock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh graph journaled into a fresh in-memory
// database. Session ids are fixed and the only clock is hand-driven, so the
// same scenario always produces the same trace.
//
// Execution flow:
// 1. Open an in-memory journal and start a recorder session
// 2. Build the graph from the scenario's recording stages
// 3. Execute steps, checking each step's expected outcome
// 4. Read back the journaled trace and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	st, err := store.Open(":memory:", store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	rec, err := store.NewRecorder(ctx, st, scenario.Name,
		store.WithSessionIDs(testutil.NewFixedSessionGenerator(scenario.Session)),
		store.WithRecorderLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start journal session: %w", err)
	}

	h := &Harness{
		graph:  graph.New(graph.WithLogger(logger), graph.WithPollInterval(time.Millisecond)),
		stages: make(map[string]*testutil.RecordingStage, len(scenario.Stages)),
		logger: logger,
	}
	defer h.close()

	calls := testutil.NewCallLog()
	for _, spec := range scenario.Stages {
		s := testutil.NewRecordingStage(spec.Name, calls)
		for _, op := range spec.Fail {
			s.FailOn(op, fmt.Errorf("injected %s failure", op))
		}
		s.SetTransitioning(spec.TransitioningPolls)
		if err := h.graph.AddStage(spec.Name, s, graph.WithRenderer(spec.Renderer)); err != nil {
			return nil, fmt.Errorf("add stage %s: %w", spec.Name, err)
		}
		h.stages[spec.Name] = s
	}
	if err := rec.Attach(h.graph); err != nil {
		return nil, fmt.Errorf("attach recorder: %w", err)
	}

	result := NewResult()
	result.Session = rec.SessionID()

	for i, step := range scenario.Steps {
		got := h.execute(step)
		result.Steps = append(result.Steps, StepOutcome{Action: step.Action, Stage: step.Stage, Outcome: got})
		if step.Expect != "" && got != step.Expect {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected %s, got %s", i, step.Action, step.Expect, got))
		}
	}

	result.FinalState = h.graph.State().String()
	result.Calls = calls.Entries()

	if err := rec.Err(); err != nil {
		return nil, fmt.Errorf("journal write failed: %w", err)
	}
	trace, err := st.ReadTrace(ctx, rec.SessionID())
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	for _, e := range trace {
		te := TraceEvent{Seq: e.Seq, Kind: string(e.Kind), Detail: e.Detail}
		if e.Kind == store.TraceEvent {
			te.Code = e.Code.String()
		}
		result.Trace = append(result.Trace, te)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step and returns its outcome string.
func (h *Harness) execute(step Step) string {
	timeout := time.Duration(step.TimeoutMs) * time.Millisecond

	switch step.Action {
	case ActionRun:
		return outcome(h.graph.Run(graph.NoStartTime))
	case ActionPause:
		return outcome(h.graph.Pause())
	case ActionStop:
		return outcome(h.graph.Stop())
	case ActionGetState:
		_, err := h.graph.GetState(timeout)
		return outcome(err)
	case ActionComplete:
		return outcome(h.stages[step.Stage].Complete())
	case ActionNotify:
		code, err := events.ParseCode(step.Code)
		if err != nil {
			return outcome(err)
		}
		return outcome(h.stages[step.Stage].Notify(code, nil, nil))
	case ActionWaitCompletion:
		code, err := h.graph.WaitForCompletion(timeout)
		if err != nil {
			return outcome(err)
		}
		return code.String()
	case ActionSetSyncSource:
		clock, err := h.syncSource()
		if err != nil {
			return outcome(err)
		}
		return outcome(h.graph.SetSyncSource(clock))
	case ActionRemoveStage:
		return outcome(h.graph.RemoveStage(step.Stage))
	case ActionCancelDefault:
		return outcome(h.graph.CancelDefaultHandling(events.Complete))
	case ActionRestoreDefault:
		return outcome(h.graph.RestoreDefaultHandling(events.Complete))
	}
	return "unknown_action"
}

// syncSource returns the scenario's hand-driven clock, creating it on
// first use.
func (h *Harness) syncSource() (*refclock.Clock, error) {
	if h.clock != nil {
		return h.clock, nil
	}
	h.ticks = testutil.NewManualTicks(0)
	clock, err := refclock.New(
		refclock.WithTickSource(h.ticks.Source(), refclock.Millisecond),
		refclock.WithLogger(h.logger),
	)
	if err != nil {
		return nil, err
	}
	h.clock = clock
	return clock, nil
}

func (h *Harness) close() {
	_ = h.graph.Close()
	if h.clock != nil {
		_ = h.clock.Close()
	}
}

// outcome renders err as a step outcome: "ok", the lower-case error
// category, or "error" for uncategorized failures.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := errs.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}
