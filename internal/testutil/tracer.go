package testutil

import (
	"github.com/4rchr4y/moss/internal/trace"
)

// RecordingTracer is a trace.Recorder on a deterministic clock and fixed
// session, with helpers for asserting on what a runtime did.
type RecordingTracer struct {
	*trace.Recorder
	Clock *DeterministicClock
}

// NewRecordingTracer creates a tracer stamping DefaultSession.
func NewRecordingTracer() *RecordingTracer {
	clock := NewDeterministicClock()
	return &RecordingTracer{
		Recorder: trace.NewRecorder(DefaultSession, clock),
		Clock:    clock,
	}
}

// Kinds returns the kinds of all recorded events in order.
func (r *RecordingTracer) Kinds() []trace.Kind {
	events := r.Events()
	kinds := make([]trace.Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many events of kind were recorded.
func (r *RecordingTracer) Count(kind trace.Kind) int {
	return len(r.Filter(kind))
}

// CountFor returns how many events of kind were recorded for subject.
func (r *RecordingTracer) CountFor(kind trace.Kind, subject uint64) int {
	n := 0
	for _, e := range r.Filter(kind) {
		if e.Subject == subject {
			n++
		}
	}
	return n
}
