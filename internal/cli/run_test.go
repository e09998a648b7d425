package cli

import (
	"bytes"
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

type runResponse struct {
	Status  string    `json:"status"`
	Session string    `json:"session"`
	Data    RunResult `json:"data"`
	Error   *CLIError `json:"error"`
}

func TestRunCommand_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterScenario)

	out, err := execute(t, "run", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Scenario: counter_notify")
	assert.Contains(t, out, "Session:  test-session")
	assert.Contains(t, out, "[1] entity.create subject=1")
	assert.Contains(t, out, "[8] effect.notify subject=1")
	assert.Contains(t, out, "counter = 1")
	assert.Contains(t, out, "✓ counter_notify (9 events)")
	assert.NotContains(t, out, "Stored in")
}

func TestRunCommand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "counter.yaml", counterScenario)

	out, err := execute(t, "--format", "json", "run", path)
	require.NoError(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, testutil.DefaultSession, resp.Session)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "counter_notify", resp.Data.Scenario)
	assert.Equal(t, map[string]int{"counter": 1}, resp.Data.State)
	require.Len(t, resp.Data.Trace, 9)
	assert.Equal(t, trace.KindNotify, resp.Data.Trace[7].Kind)
}

func TestRunCommand_FailingScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "failing.yaml", failingScenario)

	out, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_count")
	assert.Contains(t, out, "counter count = 1, want 5")

	out, err = execute(t, "--format", "json", "run", path)
	require.Error(t, err)

	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRunFailed, resp.Error.Code)
	assert.False(t, resp.Data.Pass)
}

func TestRunCommand_CommandErrors(t *testing.T) {
	dir := t.TempDir()
	scenario := writeFile(t, dir, "counter.yaml", counterScenario)
	badScenario := writeFile(t, dir, "bad.yaml", "name: bad\n")
	badConfig := writeFile(t, dir, "bad.cue", "max_flush_steps: -1\n")
	setup := writeFile(t, dir, "setup.yaml", "name: s\ndescription: d\nsteps:\n  - op: drop\n    target: ghost\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing scenario", []string{"run", filepath.Join(dir, "missing.yaml")}, "failed to load scenario"},
		{"invalid scenario", []string{"run", badScenario}, "failed to load scenario"},
		{"invalid config", []string{"run", scenario, "--config", badConfig}, "failed to load config"},
		{"setup error", []string{"run", setup}, "scenario setup failed"},
		{"no arguments", []string{"run"}, "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.name != "no arguments" {
				assert.Equal(t, ExitCommandError, GetExitCode(err))
			}
		})
	}
}

func TestRunCommand_StoresTrace(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "counter.yaml", counterScenario)
	db := filepath.Join(dir, "traces.db")

	cmd := NewRunCommand(&RootOptions{Format: "text"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text"},
		Database:    db,
		Sessions:    testutil.NewFixedSessionGenerator("stored-1"),
	}
	require.NoError(t, runScenarioFile(opts, path, cmd))
	assert.Contains(t, out.String(), "Session:  stored-1")
	assert.Contains(t, out.String(), "Stored in "+db)

	st, err := tracestore.Open(db)
	require.NoError(t, err)
	defer st.Close()

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []tracestore.Session{{ID: "stored-1", Name: "counter_notify", Events: 9}}, sessions)

	events, err := st.ReadSession(context.Background(), "stored-1")
	require.NoError(t, err)
	require.Len(t, events, 9)
	assert.Equal(t, "stored-1", events[0].Session)
}

func TestRunCommand_DefaultSessionIsUUID(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "counter.yaml", counterScenario)
	db := filepath.Join(dir, "traces.db")

	for range 2 {
		_, err := execute(t, "run", path, "--db", db)
		require.NoError(t, err)
	}

	st, err := tracestore.Open(db)
	require.NoError(t, err)
	defer st.Close()

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2, "each run gets its own session")
	for _, s := range sessions {
		assert.Len(t, s.ID, 36)
		assert.Equal(t, 9, s.Events)
	}
}

func TestRunCommand_ConfigTraceDB(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "counter.yaml", counterScenario)
	db := filepath.Join(dir, "from-config.db")
	cfg := writeFile(t, dir, "moss.cue", "trace_db: \""+filepath.ToSlash(db)+"\"\n")

	out, err := execute(t, "run", path, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Stored in "+filepath.ToSlash(db))
}

func TestRunCommand_ConfigQuota(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "quota.yaml", quotaScenario)

	cfg := writeFile(t, dir, "ten.cue", "max_flush_steps: 10\n")
	_, err := execute(t, "run", path, "--config", cfg)
	require.NoError(t, err)

	cfg = writeFile(t, dir, "three.cue", "max_flush_steps: 3\n")
	out, err := execute(t, "run", path, "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, out, "echo called 3 times, want 10")
}

func TestRunCommand_ScenarioQuotaWinsOverConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "quota.yaml", "max_flush_steps: 10\n"+quotaScenario)
	cfg := writeFile(t, dir, "three.cue", "max_flush_steps: 3\n")

	_, err := execute(t, "run", path, "--config", cfg)
	require.NoError(t, err)
}
