package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// FormatTrace renders a result as the plain-text trace stored in golden
// files. The layout is stable: one header block, then steps, calls and the
// journal trace, each entry on its own indented line.
func FormatTrace(scenarioName string, result *Result) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "scenario: %s\n", scenarioName)
	fmt.Fprintf(&b, "session: %s\n", result.Session)
	fmt.Fprintf(&b, "final_state: %s\n", result.FinalState)

	b.WriteString("steps:\n")
	for _, s := range result.Steps {
		if s.Stage != "" {
			fmt.Fprintf(&b, "  %s %s -> %s\n", s.Action, s.Stage, s.Outcome)
		} else {
			fmt.Fprintf(&b, "  %s -> %s\n", s.Action, s.Outcome)
		}
	}

	b.WriteString("calls:\n")
	for _, c := range result.Calls {
		fmt.Fprintf(&b, "  %s\n", c)
	}

	b.WriteString("trace:\n")
	for _, e := range result.Trace {
		fmt.Fprintf(&b, "  %d %s %s\n", e.Seq, e.Kind, e.Detail)
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an already-run result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result))
}
