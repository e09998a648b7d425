package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/4rchr4y/moss/internal/trace"
)

// GoldenDir is where golden trace files live, relative to the test's
// package directory.
const GoldenDir = "testdata/golden"

// TraceBytes renders a result's trace as canonical JSON lines, the format
// golden files are stored in.
func TraceBytes(result *Result) ([]byte, error) {
	return trace.MarshalLines(result.Trace)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors. Test failure
// (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := TraceBytes(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
