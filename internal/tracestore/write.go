package tracestore

import (
	"context"
	"fmt"

	"github.com/4rchr4y/moss/internal/trace"
)

// Session describes one recorded runtime session.
type Session struct {
	ID     string
	Name   string
	Events int
}

// WriteSession records a session. Writing an existing id is a no-op.
func (s *Store) WriteSession(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name)
		VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteEvents appends events in one transaction. Every event's session must
// already be written. Events already stored under the same (session, seq)
// are left untouched.
func (s *Store) WriteEvents(ctx context.Context, events []trace.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events (session_id, seq, kind, subject, detail)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.Session, e.Seq, string(e.Kind), int64(e.Subject), e.Detail); err != nil {
			return fmt.Errorf("write event seq=%d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

// Save writes the recorder's session under name together with all of its
// events.
func (s *Store) Save(ctx context.Context, name string, rec *trace.Recorder) error {
	if err := s.WriteSession(ctx, rec.Session(), name); err != nil {
		return err
	}
	return s.WriteEvents(ctx, rec.Events())
}
