package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4rchr4y/moss/internal/config"
)

type validateResponse struct {
	Status string           `json:"status"`
	Data   ValidationResult `json:"data"`
	Error  *CLIError        `json:"error"`
}

func TestValidateCommand_ValidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "moss.cue", "max_flush_steps: 50\nlog_level: \"warn\"\n")

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ config valid")

	out, err = execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)
	var resp validateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "config", resp.Data.Kind)
}

func TestValidateCommand_InvalidConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "moss.cue", "max_flush_steps: 10\nlog_level: \"loud\"\n")

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ config invalid")
	assert.Contains(t, out, config.ErrCodeInvalid)

	out, err = execute(t, "--format", "json", "validate", path)
	require.Error(t, err)
	var resp validateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, config.ErrCodeInvalid, resp.Data.Errors[0].Code)
}

func TestValidateCommand_ConfigSyntaxError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "moss.cue", "max_flush_steps: {\n")

	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, config.ErrCodeSyntax)
}

func TestValidateCommand_Scenario(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "counter.yml", counterScenario)
	bad := writeFile(t, dir, "bad.yaml", "name: n\ndescription: d\nsteps:\n  - op: explode\n")

	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ scenario valid")

	out, err = execute(t, "validate", bad)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, CodeScenario)
	assert.Contains(t, out, `unknown op "explode"`)
}

func TestValidateCommand_CommandErrors(t *testing.T) {
	dir := t.TempDir()
	unsupported := writeFile(t, dir, "moss.toml", "")

	out, err := execute(t, "validate", filepath.Join(dir, "missing.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "file not found")

	out, err = execute(t, "validate", unsupported)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "unsupported file type")
}
