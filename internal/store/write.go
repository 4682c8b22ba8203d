package store

import (
	"context"
	"fmt"
)

// CreateSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - reopening a session id
// keeps the original record.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("create session: id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, stages, renderers)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, sess.ID, sess.Name, sess.Stages, sess.Renderers)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateSessionShape records the current stage and renderer counts.
func (s *Store) UpdateSessionShape(ctx context.Context, id string, stages, renderers int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET stages = ?, renderers = ? WHERE id = ?
	`, stages, renderers, id)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// WriteEvent appends an event to a session.
// Uses ON CONFLICT DO NOTHING for idempotency - a (session, seq) pair is
// written at most once.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) WriteEvent(ctx context.Context, sessionID string, e EventEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (session_id, seq, code, code_name, param1, param2)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, sessionID, e.Seq, int32(e.Code), e.Name, e.Param1, e.Param2)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteTransition appends a state transition to a session.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) WriteTransition(ctx context.Context, sessionID string, t TransitionEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (session_id, seq, target, error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, sessionID, t.Seq, t.Target, t.Error)
	if err != nil {
		return fmt.Errorf("write transition: %w", err)
	}
	return nil
}
