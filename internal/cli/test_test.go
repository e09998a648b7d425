package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4rchr4y/moss/internal/harness"
)

type testResponse struct {
	Status string     `json:"status"`
	Data   TestResult `json:"data"`
	Error  *CLIError  `json:"error"`
}

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		writeFile(t, dir, name, content)
	}
	return dir
}

// ============================================================================
// moss test
// ============================================================================

func TestTestCommand_AllPass(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"counter.yaml": counterScenario,
		"notes.txt":    "not a scenario",
	})

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter_notify")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Failures(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"counter.yaml": counterScenario,
		"failing.yaml": failingScenario,
		"broken.yaml":  "name: broken\n",
	})

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_count")
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
	assert.Contains(t, out, "Test Summary: 1 passed, 2 failed, 3 total")
}

func TestTestCommand_JSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"counter.yaml": counterScenario,
		"failing.yaml": failingScenario,
	})

	out, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)

	var resp testResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "counter_notify", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "wrong_count", resp.Data.Scenarios[1].Name)
	assert.Contains(t, resp.Data.Scenarios[1].Errors[0], "want 5")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"counter.yaml": counterScenario,
		"failing.yaml": failingScenario,
	})

	out, err := execute(t, "test", dir, "--filter", "count*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "wrong_count")
}

func TestTestCommand_Empty(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	out, err = execute(t, "--format", "json", "test", t.TempDir())
	require.NoError(t, err)
	var resp testResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Data.Scenarios)
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

// ============================================================================
// Golden files
// ============================================================================

func TestTestCommand_GoldenUpdateThenMatch(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"counter.yaml": counterScenario})
	goldenPath := filepath.Join(dir, "golden", "counter.golden")

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ counter_notify (golden updated)")

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)

	s, err := harness.ParseScenario([]byte(counterScenario))
	require.NoError(t, err)
	result, err := harness.Run(s)
	require.NoError(t, err)
	want, err := harness.TraceBytes(result)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(data))

	out, err = execute(t, "--format", "json", "test", dir)
	require.NoError(t, err)
	var resp testResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"counter.yaml": counterScenario})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "golden"), 0o755))
	writeFile(t, filepath.Join(dir, "golden"), "counter.golden", `{"kind":"flush.begin","seq":1}`+"\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "counter.golden"),
		goldenFilePath(filepath.Join("scenarios", "counter.yaml")))
}
