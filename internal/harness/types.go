package harness

// TraceEvent is one journaled entry: an event the graph queued or a state
// transition it broadcast.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`           // "event" or "transition"
	Code   string `json:"code,omitempty"` // event code name; empty for transitions
	Detail string `json:"detail"`
}

// StepOutcome records what one scenario step returned.
type StepOutcome struct {
	Action  string `json:"action"`
	Stage   string `json:"stage,omitempty"`
	Outcome string `json:"outcome"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Session is the journal session id the scenario ran under.
	Session string `json:"session"`

	// Steps holds one outcome per scenario step.
	Steps []StepOutcome `json:"steps"`

	// Calls is the shared stage call log, "<stage>.<op>" per entry.
	Calls []string `json:"calls"`

	// Trace contains journaled events and transitions in seq order.
	Trace []TraceEvent `json:"trace"`

	// FinalState is the graph state after the last step.
	FinalState string `json:"final_state"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Calls:  []string{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events returns the event entries of the trace, in order.
func (r *Result) Events() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Kind == kindEvent {
			out = append(out, e)
		}
	}
	return out
}

const (
	kindEvent      = "event"
	kindTransition = "transition"
)
