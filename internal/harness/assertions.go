package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
)

// graphCompletionDetail is the trace detail of a graph-level Complete: the
// aggregator queues it with both params empty.
const graphCompletionDetail = "Complete null null"

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Kind, event.Detail)
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		return assertEventCount(result, a)
	case AssertEventOrder:
		return assertEventOrder(result, a)
	case AssertFinalState:
		return assertFinalState(result, a)
	case AssertCallOrder:
		return assertCallOrder(result, a)
	case AssertCompletionCount:
		return assertCompletionCount(result, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertEventCount checks that events with the given code were queued
// exactly Count times.
func assertEventCount(result *Result, a Assertion) error {
	name, err := codeName(a.Code)
	if err != nil {
		return err
	}

	n := 0
	for _, e := range result.Events() {
		if e.Code == name {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%s queued %d times", name, a.Count),
			Actual:   fmt.Sprintf("queued %d times", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertEventOrder checks that codes appear in the event trace in order.
// Intervening events are allowed.
func assertEventOrder(result *Result, a Assertion) error {
	want := make([]string, len(a.Codes))
	for i, c := range a.Codes {
		name, err := codeName(c)
		if err != nil {
			return err
		}
		want[i] = name
	}

	evs := result.Events()
	got := make([]string, len(evs))
	for i, e := range evs {
		got[i] = e.Code
	}

	if !isSubsequence(want, got) {
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: fmt.Sprintf("events in order %v", want),
			Actual:   fmt.Sprintf("events %v", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState checks the graph's state after the last step.
func assertFinalState(result *Result, a Assertion) error {
	want, err := graph.ParseState(a.State)
	if err != nil {
		return err
	}
	if result.FinalState != want.String() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: want.String(),
			Actual:   result.FinalState,
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertCallOrder checks that stage calls appear in the call log in order.
// Intervening calls are allowed.
func assertCallOrder(result *Result, a Assertion) error {
	if !isSubsequence(a.Calls, result.Calls) {
		return &AssertionError{
			Type:     AssertCallOrder,
			Expected: fmt.Sprintf("calls in order %v", a.Calls),
			Actual:   fmt.Sprintf("calls %v", result.Calls),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertCompletionCount counts graph-level completions, not renderer
// completions that passed through with default handling cancelled.
func assertCompletionCount(result *Result, a Assertion) error {
	n := 0
	for _, e := range result.Events() {
		if e.Detail == graphCompletionDetail {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertCompletionCount,
			Expected: fmt.Sprintf("%d graph completions", a.Count),
			Actual:   fmt.Sprintf("%d graph completions", n),
			Trace:    result.Trace,
		}
	}
	return nil
}

func codeName(s string) (string, error) {
	c, err := events.ParseCode(s)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

// isSubsequence reports whether want appears in got in order.
func isSubsequence(want, got []string) bool {
	i := 0
	for _, g := range got {
		if i < len(want) && g == want[i] {
			i++
		}
	}
	return i == len(want)
}
