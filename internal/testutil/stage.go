package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/roach88/filtergraph/internal/errs"
	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
	"github.com/roach88/filtergraph/internal/refclock"
)

// Stage operation names used in call logs and failure injection.
const (
	OpStop          = "stop"
	OpPause         = "pause"
	OpRun           = "run"
	OpSetSyncSource = "set_sync_source"
)

// CallLog records stage calls across several stages in the order they
// happened. Entries are "<stage>.<op>".
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

// NewCallLog creates an empty log.
func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) add(stage, op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, stage+"."+op)
}

// Entries returns a copy of the log.
func (l *CallLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset clears the log.
func (l *CallLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// RecordingStage is a graph.Stage double that records every call, fails on
// demand and can report Transitioning for a number of polls.
//
// A failed call leaves the stage's state unchanged.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type RecordingStage struct {
	name string
	log  *CallLog

	mu            sync.Mutex
	state         graph.State
	fail          map[string]error
	transitioning int
	sink          graph.Sink
	clock         refclock.ReferenceClock
	starts        []refclock.Time
}

// NewRecordingStage creates a stopped stage writing to log. A nil log gets
// a private one.
func NewRecordingStage(name string, log *CallLog) *RecordingStage {
	if log == nil {
		log = NewCallLog()
	}
	return &RecordingStage{
		name:  name,
		log:   log,
		state: graph.Stopped,
		fail:  make(map[string]error),
	}
}

// Name returns the stage name.
func (s *RecordingStage) Name() string { return s.name }

// Log returns the call log the stage writes to.
func (s *RecordingStage) Log() *CallLog { return s.log }

// FailOn makes every later call to op return err. A nil err clears it.
func (s *RecordingStage) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// SetTransitioning makes the next n GetState calls report Transitioning.
func (s *RecordingStage) SetTransitioning(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitioning = n
}

// Stop implements graph.Stage.
func (s *RecordingStage) Stop() error {
	return s.apply(OpStop, graph.Stopped)
}

// Pause implements graph.Stage.
func (s *RecordingStage) Pause() error {
	return s.apply(OpPause, graph.Paused)
}

// Run implements graph.Stage.
func (s *RecordingStage) Run(start refclock.Time) error {
	if err := s.apply(OpRun, graph.Running); err != nil {
		return err
	}
	s.mu.Lock()
	s.starts = append(s.starts, start)
	s.mu.Unlock()
	return nil
}

// GetState implements graph.Stage.
func (s *RecordingStage) GetState(time.Duration) (graph.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitioning > 0 {
		s.transitioning--
		return s.state, errs.Transitioning("stage.get_state")
	}
	return s.state, nil
}

// SetSyncSource implements graph.Stage.
func (s *RecordingStage) SetSyncSource(clock refclock.ReferenceClock) error {
	s.log.add(s.name, OpSetSyncSource)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[OpSetSyncSource]; err != nil {
		return err
	}
	s.clock = clock
	return nil
}

// JoinGraph implements graph.SinkAware.
func (s *RecordingStage) JoinGraph(sink graph.Sink, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// State returns the stage's current state.
func (s *RecordingStage) State() graph.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Clock returns the last sync source the stage accepted.
func (s *RecordingStage) Clock() refclock.ReferenceClock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Starts returns every start time passed to a successful Run.
func (s *RecordingStage) Starts() []refclock.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]refclock.Time, len(s.starts))
	copy(out, s.starts)
	return out
}

// Notify sends an event through the graph sink the stage joined.
func (s *RecordingStage) Notify(code events.Code, param1, param2 any) error {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return fmt.Errorf("stage %s has not joined a graph", s.name)
	}
	return sink.Notify(code, param1, param2)
}

// Complete reports end of stream, identifying the stage in param2.
func (s *RecordingStage) Complete() error {
	return s.Notify(events.Complete, nil, s.name)
}

func (s *RecordingStage) apply(op string, target graph.State) error {
	s.log.add(s.name, op)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[op]; err != nil {
		return err
	}
	s.state = target
	return nil
}
