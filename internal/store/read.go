package store

import (
	"context"
	"fmt"

	"github.com/roach88/filtergraph/internal/events"
)

// ReadSession retrieves a session by id.
// Returns sql.ErrNoRows (wrapped) if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, stages, renderers FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Name, &sess.Stages, &sess.Renderers)
	if err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}
	return sess, nil
}

// ListSessions returns every session ordered by id. UUIDv7 ids sort in
// creation order.
//
// Returns an empty slice (not nil) if there are no sessions.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, stages, renderers FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.Stages, &sess.Renderers); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadEvents returns a session's events ordered by seq.
//
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) ReadEvents(ctx context.Context, sessionID string) ([]EventEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, code, code_name, param1, param2 FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []EventEntry{}
	for rows.Next() {
		var (
			e    EventEntry
			code int32
		)
		if err := rows.Scan(&e.Seq, &code, &e.Name, &e.Param1, &e.Param2); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Code = events.Code(code)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// CountEvents returns how many events with code a session journaled.
func (s *Store) CountEvents(ctx context.Context, sessionID string, code events.Code) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE session_id = ? AND code = ?
	`, sessionID, int32(code)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ReadTransitions returns a session's transitions ordered by seq.
//
// Returns an empty slice (not nil) if the session has no transitions.
func (s *Store) ReadTransitions(ctx context.Context, sessionID string) ([]TransitionEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, target, error FROM transitions
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	entries := []TransitionEntry{}
	for rows.Next() {
		var t TransitionEntry
		if err := rows.Scan(&t.Seq, &t.Target, &t.Error); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		entries = append(entries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest seq journaled for a session, or 0.
func (s *Store) LastSeq(ctx context.Context, sessionID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM (
			SELECT seq FROM events WHERE session_id = ?
			UNION ALL
			SELECT seq FROM transitions WHERE session_id = ?
		)
	`, sessionID, sessionID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// ReadTrace merges a session's events and transitions into one seq-ordered
// trace. Event details are "<code> <param1> <param2>"; transition details
// are the target state, followed by "!" and the error when it failed.
func (s *Store) ReadTrace(ctx context.Context, sessionID string) ([]TraceEntry, error) {
	evs, err := s.ReadEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	trs, err := s.ReadTransitions(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	trace := make([]TraceEntry, 0, len(evs)+len(trs))
	i, j := 0, 0
	for i < len(evs) || j < len(trs) {
		if j >= len(trs) || (i < len(evs) && evs[i].Seq < trs[j].Seq) {
			e := evs[i]
			trace = append(trace, TraceEntry{
				Seq:    e.Seq,
				Kind:   TraceEvent,
				Code:   e.Code,
				Detail: fmt.Sprintf("%s %s %s", e.Name, e.Param1, e.Param2),
			})
			i++
			continue
		}
		t := trs[j]
		detail := t.Target
		if t.Error != "" {
			detail += " ! " + t.Error
		}
		trace = append(trace, TraceEntry{Seq: t.Seq, Kind: TraceTransition, Detail: detail})
		j++
	}
	return trace, nil
}
