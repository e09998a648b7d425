package cli

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/4rchr4y/moss/internal/trace"
	"github.com/4rchr4y/moss/internal/tracestore"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Kind     string // optional - filter to one event kind
}

// SessionList is the JSON payload when no session is selected.
type SessionList struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSummary describes one stored session.
type SessionSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Events int    `json:"events"`
}

// TraceResult is the JSON payload for one session.
type TraceResult struct {
	Session string             `json:"session"`
	Events  []trace.Event      `json:"events"`
	Counts  map[trace.Kind]int `json:"counts"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect traces stored by moss run",
		Long: `Inspect runtime traces persisted in a SQLite database.

Without --session, lists every stored session with its scenario name and
event count. With --session, prints that session's events in order
followed by a count per event kind.

Examples:
  moss trace --db ./traces.db
  moss trace --db ./traces.db --session 0192f0c4-...
  moss trace --db ./traces.db --session 0192f0c4-... --kind effect.notify
  moss trace --db ./traces.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id to print")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "only print events of this kind")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := opts.formatter(cmd)

	if opts.Kind != "" && opts.Session == "" {
		return NewExitError(ExitCommandError, "--kind requires --session")
	}

	st, err := tracestore.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		list := SessionList{Sessions: make([]SessionSummary, 0, len(sessions))}
		for _, s := range sessions {
			list.Sessions = append(list.Sessions, SessionSummary{ID: s.ID, Name: s.Name, Events: s.Events})
		}
		if formatter.JSON() {
			return formatter.Encode(CLIResponse{Status: "ok", Data: list})
		}
		outputSessionsText(cmd.OutOrStdout(), list)
		return nil
	}

	events, err := st.ReadSession(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	if len(events) == 0 {
		if formatter.JSON() {
			return formatter.Error(CodeStore, fmt.Sprintf("no events found for session: %s", opts.Session), nil)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No events found for session: %s\n", opts.Session)
		return nil
	}

	counts, err := st.CountByKind(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}

	if opts.Kind != "" {
		events = slices.DeleteFunc(events, func(e trace.Event) bool {
			return string(e.Kind) != opts.Kind
		})
	}

	result := TraceResult{Session: opts.Session, Events: events, Counts: counts}
	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, Session: opts.Session})
	}
	outputTraceText(cmd.OutOrStdout(), result)
	return nil
}

func outputSessionsText(w io.Writer, list SessionList) {
	if len(list.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions stored.")
		return
	}
	for _, s := range list.Sessions {
		fmt.Fprintf(w, "%s  %-24s %d events\n", s.ID, s.Name, s.Events)
	}
}

func outputTraceText(w io.Writer, result TraceResult) {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, e := range result.Events {
		fmt.Fprintf(w, "  %s\n", e)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	total := 0
	for _, kind := range slices.Sorted(maps.Keys(result.Counts)) {
		fmt.Fprintf(w, "  %-18s %d\n", kind, result.Counts[kind])
		total += result.Counts[kind]
	}
	fmt.Fprintf(w, "  %-18s %d\n", "total", total)
}
