package store

import "github.com/roach88/filtergraph/internal/events"

// Session is one journaled graph lifetime.
type Session struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Stages    int    `json:"stages"`
	Renderers int    `json:"renderers"`
}

// EventEntry is one journaled event record. Params hold JSON text.
type EventEntry struct {
	Seq    int64
	Code   events.Code
	Name   string
	Param1 string
	Param2 string
}

// TransitionEntry is one journaled state transition. Error is empty when
// every stage accepted the transition.
type TransitionEntry struct {
	Seq    int64
	Target string
	Error  string
}

// TraceKind distinguishes the two kinds of journal entry in a trace.
type TraceKind string

const (
	TraceEvent      TraceKind = "event"
	TraceTransition TraceKind = "transition"
)

// TraceEntry is one line of a merged session trace. Code is set for
// events only.
type TraceEntry struct {
	Seq    int64
	Kind   TraceKind
	Code   events.Code
	Detail string
}
