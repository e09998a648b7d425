package tracestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4rchr4y/moss/internal/testutil"
	"github.com/4rchr4y/moss/internal/trace"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func recordSample(session string) *trace.Recorder {
	rec := trace.NewRecorder(session, testutil.NewDeterministicClock())
	rec.Record(trace.Event{Kind: trace.KindEntityCreate, Subject: 1})
	rec.Record(trace.Event{Kind: trace.KindEffectEnqueue, Subject: 1, Detail: "notify"})
	rec.Record(trace.Event{Kind: trace.KindFlushBegin})
	rec.Record(trace.Event{Kind: trace.KindNotify, Subject: 1})
	rec.Record(trace.Event{Kind: trace.KindFlushEnd})
	return rec
}

// ============================================================================
// Open
// ============================================================================

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestOpen_SetsPragmasAndVersion(t *testing.T) {
	s := openTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestClose_ZeroStore(t *testing.T) {
	var s Store
	assert.NoError(t, s.Close())
}

// ============================================================================
// Write / Read
// ============================================================================

func TestSave_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := recordSample("session-a")

	require.NoError(t, s.Save(ctx, "scenario-a", rec))

	got, err := s.ReadSession(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, rec.Events(), got)
}

func TestSave_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := recordSample("session-a")

	require.NoError(t, s.Save(ctx, "scenario-a", rec))
	require.NoError(t, s.Save(ctx, "renamed", rec))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "scenario-a", sessions[0].Name, "first write wins")
	assert.Equal(t, 5, sessions[0].Events)
}

func TestWriteEvents_RequiresSession(t *testing.T) {
	s := openTestStore(t)

	err := s.WriteEvents(context.Background(), []trace.Event{
		{Seq: 1, Session: "missing", Kind: trace.KindFlushBegin},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write event seq=1")
}

func TestWriteEvents_RollsBackOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteSession(ctx, "session-a", "a"))

	err := s.WriteEvents(ctx, []trace.Event{
		{Seq: 1, Session: "session-a", Kind: trace.KindFlushBegin},
		{Seq: 1, Session: "missing", Kind: trace.KindFlushEnd},
	})
	require.Error(t, err)

	got, err := s.ReadSession(ctx, "session-a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadSession_Unknown(t *testing.T) {
	s := openTestStore(t)

	got, err := s.ReadSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadSession_OrderedBySeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteSession(ctx, "s", "out of order"))

	require.NoError(t, s.WriteEvents(ctx, []trace.Event{
		{Seq: 3, Session: "s", Kind: trace.KindFlushEnd},
		{Seq: 1, Session: "s", Kind: trace.KindFlushBegin},
		{Seq: 2, Session: "s", Kind: trace.KindDefer},
	}))

	got, err := s.ReadSession(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestListSessions_Ordered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "second", recordSample("b")))
	require.NoError(t, s.WriteSession(ctx, "a", "empty"))

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Session{
		{ID: "a", Name: "empty", Events: 0},
		{ID: "b", Name: "second", Events: 5},
	}, sessions)
}

func TestCountByKind(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "sample", recordSample("s")))

	counts, err := s.CountByKind(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[trace.KindNotify])
	assert.Equal(t, 1, counts[trace.KindFlushBegin])
	assert.Zero(t, counts[trace.KindEntityFinalize])
}
