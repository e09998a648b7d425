package tracestore

import (
	"context"
	"fmt"

	"github.com/4rchr4y/moss/internal/trace"
)

// ReadSession returns a session's events ordered by seq. An unknown session
// yields no events and no error.
func (s *Store) ReadSession(ctx context.Context, id string) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, subject, detail
		FROM trace_events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	defer rows.Close()

	var events []trace.Event
	for rows.Next() {
		var (
			e       trace.Event
			kind    string
			subject int64
		)
		if err := rows.Scan(&e.Seq, &kind, &subject, &e.Detail); err != nil {
			return nil, fmt.Errorf("read session: %w", err)
		}
		e.Session = id
		e.Kind = trace.Kind(kind)
		e.Subject = uint64(subject)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return events, nil
}

// ListSessions returns every session with its event count, ordered by id.
// UUIDv7 ids sort by creation time.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, COUNT(e.seq)
		FROM sessions s
		LEFT JOIN trace_events e ON e.session_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.Events); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// CountByKind returns how many events of each kind a session holds.
func (s *Store) CountByKind(ctx context.Context, id string) (map[trace.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM trace_events
		WHERE session_id = ?
		GROUP BY kind
	`, id)
	if err != nil {
		return nil, fmt.Errorf("count by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[trace.Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("count by kind: %w", err)
		}
		counts[trace.Kind(kind)] = n
	}
	return counts, rows.Err()
}
