package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/4rchr4y/moss/internal/config"
	"github.com/4rchr4y/moss/internal/harness"
	"github.com/4rchr4y/moss/internal/runtime"
	"github.com/4rchr4y/moss/internal/trace"
	"github.com/4rchr4y/moss/internal/tracestore"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Config   string

	// Sessions generates the session id of traces written to Database.
	// If nil, defaults to trace.UUIDv7Generator.
	Sessions trace.SessionGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string         `json:"scenario"`
	Session  string         `json:"session"`
	Pass     bool           `json:"pass"`
	Errors   []string       `json:"errors,omitempty"`
	State    map[string]int `json:"state,omitempty"`
	Trace    []trace.Event  `json:"trace"`
	Database string         `json:"database,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run a scenario file against a fresh runtime and print the trace.

A CUE config file may set the flush quota, the log level and a default
trace database. A quota set in the scenario itself takes precedence.

When a database is given (--db or trace_db in the config) the trace is
stored under a new time-ordered session id; inspect it with "moss trace".

Exit codes:
  0 - Scenario passed
  1 - Scenario ran but an expectation or assertion failed
  2 - Command error (unreadable scenario or config, database errors)

Examples:
  moss run ./scenarios/counter.yaml
  moss run ./scenarios/counter.yaml --db ./traces.db
  moss run ./scenarios/counter.yaml --config ./moss.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "store the trace in this SQLite database")
	cmd.Flags().StringVar(&opts.Config, "config", "", "CUE config file")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	logger := opts.logger(cmd.ErrOrStderr(), cfg.Level())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	database := opts.Database
	if database == "" {
		database = cfg.TraceDB
	}

	runOpts := harness.Options{
		Logger:         logger,
		RuntimeOptions: runtimeOptions(cfg, opts.Config != "", scenario),
	}
	if database != "" {
		gen := opts.Sessions
		if gen == nil {
			gen = trace.UUIDv7Generator{}
		}
		runOpts.Session = gen.Generate()
	}

	logger.Debug("running scenario", "path", path, "scenario", scenario.Name)
	result, err := harness.RunWithOptions(scenario, runOpts)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario setup failed", err)
	}

	if database != "" {
		if err := storeResult(commandContext(cmd), database, scenario.Name, result); err != nil {
			return WrapExitError(ExitCommandError, "failed to store trace", err)
		}
		logger.Info("trace stored", "db", database, "session", result.Session, "events", len(result.Trace))
	}

	out := RunResult{
		Scenario: scenario.Name,
		Session:  result.Session,
		Pass:     result.Pass,
		Errors:   result.Errors,
		State:    result.State,
		Trace:    result.Trace,
		Database: database,
	}

	formatter := opts.formatter(cmd)
	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: out, Session: out.Session}
		if !out.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{Code: CodeRunFailed, Message: fmt.Sprintf("scenario %s failed", out.Scenario)}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		outputRunText(cmd.OutOrStdout(), out)
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", out.Scenario))
	}
	return nil
}

// runtimeOptions returns the config's runtime options when a config file was
// given and the scenario does not pin its own quota.
func runtimeOptions(cfg config.Config, fromFile bool, scenario *harness.Scenario) []runtime.Option {
	if !fromFile || scenario.MaxFlushSteps > 0 {
		return nil
	}
	return cfg.RuntimeOptions()
}

func storeResult(ctx context.Context, path, name string, result *harness.Result) error {
	st, err := tracestore.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.WriteSession(ctx, result.Session, name); err != nil {
		return err
	}
	return st.WriteEvents(ctx, result.Trace)
}

func outputRunText(w io.Writer, out RunResult) {
	fmt.Fprintf(w, "Scenario: %s\n", out.Scenario)
	fmt.Fprintf(w, "Session:  %s\n", out.Session)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Trace ===")
	if len(out.Trace) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range out.Trace {
		fmt.Fprintf(w, "  %s\n", e)
	}
	fmt.Fprintln(w)

	if len(out.State) > 0 {
		fmt.Fprintln(w, "=== State ===")
		for _, name := range slices.Sorted(maps.Keys(out.State)) {
			fmt.Fprintf(w, "  %s = %d\n", name, out.State[name])
		}
		fmt.Fprintln(w)
	}

	if out.Database != "" {
		fmt.Fprintf(w, "Stored in %s\n", out.Database)
	}

	if out.Pass {
		fmt.Fprintf(w, "✓ %s (%d events)\n", out.Scenario, len(out.Trace))
		return
	}
	fmt.Fprintf(w, "✗ %s\n", out.Scenario)
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
