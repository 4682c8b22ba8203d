package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/filtergraph/internal/events"
	"github.com/roach88/filtergraph/internal/graph"
)

// Recorder journals one graph session. It observes the graph's event queue
// (events.Observer) and its transitions (graph.TransitionObserver).
//
// Observers cannot fail the graph, so write errors are logged and the
// first one is kept for Err.
//
// Thread-safety: Recorder is safe for concurrent use. Seq numbers are taken
// in the order the graph reports entries; concurrent writes may land in the
// database out of order, reads always order by seq.
type Recorder struct {
	ctx     context.Context
	store   *Store
	session Session
	seq     *Sequencer
	logger  *slog.Logger

	mu  sync.Mutex
	err error
}

// RecorderOption configures a Recorder.
type RecorderOption func(*recorderConfig)

type recorderConfig struct {
	ids    SessionIDGenerator
	logger *slog.Logger
}

// WithSessionIDs sets the session id generator. Default UUIDv7Generator.
func WithSessionIDs(g SessionIDGenerator) RecorderOption {
	return func(c *recorderConfig) {
		c.ids = g
	}
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(c *recorderConfig) {
		c.logger = l
	}
}

// NewRecorder creates (or reopens) a session named name and returns a
// recorder appending to it. ctx bounds every write the recorder makes.
func NewRecorder(ctx context.Context, s *Store, name string, opts ...RecorderOption) (*Recorder, error) {
	cfg := recorderConfig{ids: UUIDv7Generator{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	sess := Session{ID: cfg.ids.Generate(), Name: name}
	if err := s.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}
	last, err := s.LastSeq(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}

	return &Recorder{
		ctx:     ctx,
		store:   s,
		session: sess,
		seq:     NewSequencerAt(last),
		logger:  cfg.logger.With("session", sess.ID),
	}, nil
}

// SessionID returns the journaled session id.
func (r *Recorder) SessionID() string {
	return r.session.ID
}

// Attach registers the recorder on g and records the graph's shape.
func (r *Recorder) Attach(g *graph.Graph) error {
	g.AddEventObserver(r)
	g.AddTransitionObserver(r)
	return r.RecordShape(len(g.Stages()), g.Renderers())
}

// RecordShape stores the stage and renderer counts on the session.
func (r *Recorder) RecordShape(stages, renderers int) error {
	return r.store.UpdateSessionShape(r.ctx, r.session.ID, stages, renderers)
}

// OnEvent implements events.Observer.
func (r *Recorder) OnEvent(rec events.Record) {
	entry := EventEntry{
		Seq:    r.seq.Next(),
		Code:   rec.Code,
		Name:   rec.Code.String(),
		Param1: marshalParam(rec.Param1),
		Param2: marshalParam(rec.Param2),
	}
	r.keep(r.store.WriteEvent(r.ctx, r.session.ID, entry))
}

// OnTransition implements graph.TransitionObserver.
func (r *Recorder) OnTransition(target graph.State, err error) {
	entry := TransitionEntry{Seq: r.seq.Next(), Target: target.String()}
	if err != nil {
		entry.Error = err.Error()
	}
	r.keep(r.store.WriteTransition(r.ctx, r.session.ID, entry))
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) keep(err error) {
	if err == nil {
		return
	}
	r.logger.Warn("journal write failed", "error", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}
