package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
	"github.com/roach88/filtergraph/internal/testutil"
)

// Scenario defines a graph conformance scenario: a set of recording stages,
// a sequence of control and stage actions, and assertions on the result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Session is an optional fixed journal session id.
	// If empty, defaults to "test-session-default" for deterministic traces.
	Session string `yaml:"session,omitempty"`

	// Stages are added to the graph in order.
	Stages []StageSpec `yaml:"stages"`

	// Steps run in order against the graph.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// StageSpec describes one recording stage.
type StageSpec struct {
	Name string `yaml:"name"`

	// Renderer marks the stage as a renderer for completion counting.
	Renderer bool `yaml:"renderer,omitempty"`

	// Fail lists operations (stop, pause, run, set_sync_source) that fail.
	Fail []string `yaml:"fail,omitempty"`

	// TransitioningPolls is how many GetState polls report Transitioning.
	TransitioningPolls int `yaml:"transitioning_polls,omitempty"`
}

// Step is one scenario action.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Stage names the stage for complete, notify and remove_stage.
	Stage string `yaml:"stage,omitempty"`

	// Code is the event code name for notify (e.g. "Repaint", "User+3").
	Code string `yaml:"code,omitempty"`

	// TimeoutMs bounds get_state and wait_completion. Default 0 (poll).
	TimeoutMs int `yaml:"timeout_ms,omitempty"`

	// Expect, if set, is the outcome the step must produce: "ok", an error
	// category ("timeout", "partial_failure", "transitioning",
	// "invalid_argument") or, for wait_completion, the returned code name.
	Expect string `yaml:"expect,omitempty"`
}

// Step actions.
const (
	ActionRun            = "run"
	ActionPause          = "pause"
	ActionStop           = "stop"
	ActionGetState       = "get_state"
	ActionComplete       = "complete"
	ActionNotify         = "notify"
	ActionWaitCompletion = "wait_completion"
	ActionSetSyncSource  = "set_sync_source"
	ActionRemoveStage    = "remove_stage"
	ActionCancelDefault  = "cancel_default_handling"
	ActionRestoreDefault = "restore_default_handling"
)

var stageActions = map[string]bool{
	ActionComplete:    true,
	ActionNotify:      true,
	ActionRemoveStage: true,
}

var knownActions = map[string]bool{
	ActionRun: true, ActionPause: true, ActionStop: true, ActionGetState: true,
	ActionComplete: true, ActionNotify: true, ActionWaitCompletion: true,
	ActionSetSyncSource: true, ActionRemoveStage: true,
	ActionCancelDefault: true, ActionRestoreDefault: true,
}

var failOps = map[string]bool{
	testutil.OpStop:          true,
	testutil.OpPause:         true,
	testutil.OpRun:           true,
	testutil.OpSetSyncSource: true,
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_count": events with Code were queued exactly Count times
	// - "event_order": Codes appear in the event trace in order
	// - "final_state": the graph ended in State
	// - "call_order": Calls appear in the stage call log in order
	// - "completion_count": exactly Count graph completions were queued
	Type string `yaml:"type"`

	Code  string   `yaml:"code,omitempty"`
	Codes []string `yaml:"codes,omitempty"`
	Count int      `yaml:"count,omitempty"`
	State string   `yaml:"state,omitempty"`
	Calls []string `yaml:"calls,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount      = "event_count"
	AssertEventOrder      = "event_order"
	AssertFinalState      = "final_state"
	AssertCallOrder       = "call_order"
	AssertCompletionCount = "completion_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, []string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, paths, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Stages) == 0 {
		return fmt.Errorf("stages list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Stages))
	for i, st := range s.Stages {
		if st.Name == "" {
			return fmt.Errorf("stages[%d]: name is required", i)
		}
		if names[st.Name] {
			return fmt.Errorf("stages[%d]: duplicate stage %q", i, st.Name)
		}
		names[st.Name] = true
		for _, op := range st.Fail {
			if !failOps[op] {
				return fmt.Errorf("stages[%d]: unknown fail op %q", i, op)
			}
		}
		if st.TransitioningPolls < 0 {
			return fmt.Errorf("stages[%d]: transitioning_polls must be non-negative", i)
		}
	}

	for i, step := range s.Steps {
		if !knownActions[step.Action] {
			return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
		}
		if stageActions[step.Action] && !names[step.Stage] {
			return fmt.Errorf("steps[%d]: %s needs a declared stage, got %q", i, step.Action, step.Stage)
		}
		if step.Action == ActionNotify {
			if _, err := events.ParseCode(step.Code); err != nil {
				return fmt.Errorf("steps[%d]: %w", i, err)
			}
		}
		if step.TimeoutMs < 0 {
			return fmt.Errorf("steps[%d]: timeout_ms must be non-negative", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEventCount:
		if _, err := events.ParseCode(a.Code); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Codes) == 0 {
			return fmt.Errorf("assertions[%d]: codes list is required for event_order", index)
		}
		for _, c := range a.Codes {
			if _, err := events.ParseCode(c); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
		if _, err := graph.ParseState(a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertCallOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: calls list is required for call_order", index)
		}
		for _, c := range a.Calls {
			if !strings.Contains(c, ".") {
				return fmt.Errorf("assertions[%d]: call %q must be <stage>.<op>", index, c)
			}
		}
	case AssertCompletionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for completion_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
