package graph

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/filtergraph/internal/refclock"
)

// State is a graph or stage run state.
type State int

const (
	Stopped State = iota
	Paused
	Running
)

// NoStartTime asks Run to start at the sync source's current time.
const NoStartTime refclock.Time = math.MinInt64

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Paused:
		return "paused"
	case Running:
		return "running"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState parses a state name, case-insensitively.
func ParseState(s string) (State, error) {
	switch strings.ToLower(s) {
	case "stopped":
		return Stopped, nil
	case "paused":
		return Paused, nil
	case "running":
		return Running, nil
	}
	return Stopped, fmt.Errorf("unknown graph state %q", s)
}
