package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its trace with testdata/golden/<name>.golden.
//
// To regenerate golden files:
//
//	go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	scenarios, paths, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for i, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			assert.Equal(t, scenario.Name+".yaml", filepath.Base(paths[i]), "file name matches scenario name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestFormatTrace(t *testing.T) {
	r := NewResult()
	r.Session = "s1"
	r.FinalState = "paused"
	r.Steps = []StepOutcome{
		{Action: ActionPause, Outcome: "ok"},
		{Action: ActionComplete, Stage: "video", Outcome: "ok"},
	}
	r.Calls = []string{"video.pause"}
	r.Trace = []TraceEvent{
		{Seq: 1, Kind: kindTransition, Detail: "paused"},
		{Seq: 2, Kind: kindEvent, Code: "Repaint", Detail: "Repaint null null"},
	}

	want := strings.Join([]string{
		"scenario: demo",
		"session: s1",
		"final_state: paused",
		"steps:",
		"  pause -> ok",
		"  complete video -> ok",
		"calls:",
		"  video.pause",
		"trace:",
		"  1 transition paused",
		"  2 event Repaint null null",
		"",
	}, "\n")
	assert.Equal(t, want, string(FormatTrace("demo", r)))
}
