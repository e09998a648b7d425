package trace

import (
	"sync"

	"github.com/google/uuid"
)

// SessionGenerator produces session identifiers for recorders.
type SessionGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 session ids, so sessions
// listed from a trace store come back in creation order.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. Panics if the system random
// source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Recorder is an in-memory Tracer. It stamps each event with the next
// sequence number and its session id.
//
// The runtime records from its own goroutine; tooling may read Events from
// another, so access is guarded.
type Recorder struct {
	mu      sync.Mutex
	session string
	clock   Sequencer
	events  []Event
}

// NewRecorder creates a recorder for one session. A nil clock uses a fresh
// Clock.
func NewRecorder(session string, clock Sequencer) *Recorder {
	if clock == nil {
		clock = NewClock()
	}
	return &Recorder{session: session, clock: clock}
}

// NewSessionRecorder creates a recorder whose session id comes from gen.
func NewSessionRecorder(gen SessionGenerator) *Recorder {
	return NewRecorder(gen.Generate(), nil)
}

// Record implements Tracer.
func (r *Recorder) Record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.Seq = r.clock.Next()
	e.Session = r.session
	r.events = append(r.events, e)
}

// Session returns the session id stamped on every event.
func (r *Recorder) Session() string {
	return r.session
}

// Events returns a copy of the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Filter returns the recorded events of the given kind.
func (r *Recorder) Filter(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
