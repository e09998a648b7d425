package harness

import (
	"fmt"
	"strings"

	"github.com/4rchr4y/moss/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", event)
	}

	return buf.String()
}

// matcher selects trace events by kind, and optionally subject and detail.
type matcher struct {
	kind       trace.Kind
	subject    uint64
	hasSubject bool
	detail     string
}

func (m matcher) match(e trace.Event) bool {
	if e.Kind != m.kind {
		return false
	}
	if m.hasSubject && e.Subject != m.subject {
		return false
	}
	return m.detail == "" || e.Detail == m.detail
}

func (m matcher) String() string {
	s := string(m.kind)
	if m.hasSubject {
		s += fmt.Sprintf(" subject=%d", m.subject)
	}
	if m.detail != "" {
		s += " detail=" + m.detail
	}
	return s
}

// assertTraceContains checks if the trace contains at least one matching
// event.
func assertTraceContains(events []trace.Event, m matcher) error {
	for _, e := range events {
		if m.match(e) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: m.String(),
		Actual:   "not found in trace",
		Trace:    events,
	}
}

// assertTraceCount checks that exactly count events match.
func assertTraceCount(events []trace.Event, m matcher, count int) error {
	n := 0
	for _, e := range events {
		if m.match(e) {
			n++
		}
	}

	if n != count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", count, m),
			Actual:   fmt.Sprintf("%d occurrences", n),
			Trace:    events,
		}
	}
	return nil
}

// assertTraceOrder checks that kinds occur in the given order. Intervening
// events are allowed; each kind is matched after the previous match.
func assertTraceOrder(events []trace.Event, kinds []string) error {
	next := 0
	last := 0
	for i, e := range events {
		if next == len(kinds) {
			break
		}
		if string(e.Kind) == kinds[next] {
			next++
			last = i + 1
		}
	}

	if next < len(kinds) {
		actual := fmt.Sprintf("missing %s", kinds[next])
		if next > 0 {
			actual += fmt.Sprintf(" after %s (pos %d)", kinds[next-1], last)
		}
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("kinds in order: %v", kinds),
			Actual:   actual,
			Trace:    events,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// ids resolves the subject names used by assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, ids map[string]uint64) []string {
	var errors []string

	for i, assertion := range assertions {
		m := matcher{kind: trace.Kind(assertion.Kind), detail: assertion.Detail}
		if assertion.Subject != "" {
			id, ok := ids[assertion.Subject]
			if !ok {
				errors = append(errors, fmt.Sprintf("assertion[%d]: unknown subject %q", i, assertion.Subject))
				continue
			}
			m.subject, m.hasSubject = id, true
		}

		var err error
		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, m)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, m, assertion.Count)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion.Kinds)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
