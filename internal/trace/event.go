// Package trace records what a runtime did during its update and flush
// cycles.
//
// The runtime calls a Tracer at every lifecycle point: entity and node
// creation, effect enqueue and coalescing, flush boundaries, effect dispatch,
// finalization and release callbacks, atom writes and selector computations.
// Events carry a logical sequence number, never wall-clock time, so the same
// scenario always produces byte-identical traces.
//
// The runtime itself never performs I/O. A Recorder buffers events in memory;
// tooling encodes them (MarshalCanonical) or persists them (tracestore).
package trace

import "fmt"

// Kind identifies the lifecycle point an event was recorded at.
type Kind string

const (
	KindEntityCreate    Kind = "entity.create"
	KindEntityFinalize  Kind = "entity.finalize"
	KindEntityRelease   Kind = "entity.release"
	KindNodeCreate      Kind = "node.create"
	KindNodeFinalize    Kind = "node.finalize"
	KindAtomWrite       Kind = "atom.write"
	KindSelectorCompute Kind = "selector.compute"
	KindEffectEnqueue   Kind = "effect.enqueue"
	KindEffectCoalesce  Kind = "effect.coalesce"
	KindFlushBegin      Kind = "flush.begin"
	KindFlushEnd        Kind = "flush.end"
	KindNotify          Kind = "effect.notify"
	KindEmit            Kind = "effect.emit"
	KindDefer           Kind = "effect.defer"
)

// Event is one trace record.
type Event struct {
	// Seq is the logical clock value, strictly increasing within a session.
	Seq int64 `json:"seq"`

	// Session identifies the runtime instance that produced the event.
	Session string `json:"session,omitempty"`

	Kind Kind `json:"kind"`

	// Subject is the entity id or node key involved. Zero when none.
	Subject uint64 `json:"subject,omitempty"`

	// Detail carries kind-specific context: the effect type for enqueue
	// events, the event kind for emits, the node kind for node events.
	Detail string `json:"detail,omitempty"`
}

// String renders the event the way text output shows it:
// "[seq] kind subject=N detail=X", omitting empty fields.
func (e Event) String() string {
	s := fmt.Sprintf("[%d] %s", e.Seq, e.Kind)
	if e.Subject != 0 {
		s += fmt.Sprintf(" subject=%d", e.Subject)
	}
	if e.Detail != "" {
		s += " detail=" + e.Detail
	}
	return s
}

// Tracer receives runtime events. Implementations must not call back into
// the runtime.
type Tracer interface {
	Record(e Event)
}

// Nop discards every event.
type Nop struct{}

// Record implements Tracer.
func (Nop) Record(Event) {}
