package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4rchr4y/moss/internal/testutil"
	"github.com/4rchr4y/moss/internal/trace"
	"github.com/4rchr4y/moss/internal/tracestore"
)

// seedStore writes a short recorded session to a new database.
func seedStore(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "traces.db")

	st, err := tracestore.Open(db)
	require.NoError(t, err)
	defer st.Close()

	rec := trace.NewRecorder("s-1", testutil.NewDeterministicClock())
	rec.Record(trace.Event{Kind: trace.KindEntityCreate, Subject: 1})
	rec.Record(trace.Event{Kind: trace.KindEffectEnqueue, Subject: 1, Detail: "notify"})
	rec.Record(trace.Event{Kind: trace.KindFlushBegin})
	rec.Record(trace.Event{Kind: trace.KindNotify, Subject: 1})
	rec.Record(trace.Event{Kind: trace.KindFlushEnd})
	require.NoError(t, st.Save(context.Background(), "counter_notify", rec))
	require.NoError(t, st.WriteSession(context.Background(), "s-2", "empty"))

	return db
}

func TestTraceCommand_ListSessions(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "s-1")
	assert.Contains(t, out, "counter_notify")
	assert.Contains(t, out, "5 events")
	assert.Contains(t, out, "0 events")

	out, err = execute(t, "--format", "json", "trace", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   SessionList `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []SessionSummary{
		{ID: "s-1", Name: "counter_notify", Events: 5},
		{ID: "s-2", Name: "empty", Events: 0},
	}, resp.Data.Sessions)
}

func TestTraceCommand_ListEmptyDatabase(t *testing.T) {
	out, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "new.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions stored.")
}

func TestTraceCommand_Session(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "trace", "--db", db, "--session", "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Session: s-1")
	assert.Contains(t, out, "[2] effect.enqueue subject=1 detail=notify")
	assert.Contains(t, out, "[4] effect.notify subject=1")
	assert.Regexp(t, `flush\.begin\s+1`, out)
	assert.Regexp(t, `total\s+5`, out)
}

func TestTraceCommand_SessionJSONWithKind(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--session", "s-1", "--kind", "effect.notify")
	require.NoError(t, err)

	var resp struct {
		Status  string      `json:"status"`
		Session string      `json:"session"`
		Data    TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "s-1", resp.Session)
	require.Len(t, resp.Data.Events, 1)
	assert.Equal(t, trace.KindNotify, resp.Data.Events[0].Kind)
	assert.Equal(t, 2, resp.Data.Counts[trace.KindEffectEnqueue]+resp.Data.Counts[trace.KindNotify])
}

func TestTraceCommand_UnknownSession(t *testing.T) {
	db := seedStore(t)

	out, err := execute(t, "trace", "--db", db, "--session", "ghost")
	require.NoError(t, err)
	assert.Contains(t, out, "No events found for session: ghost")
}

func TestTraceCommand_Errors(t *testing.T) {
	_, err := execute(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)

	_, err = execute(t, "trace", "--db", filepath.Join(t.TempDir(), "x.db"), "--kind", "flush.end")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "trace", "--db", filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}
