// Package effect defines the deferred actions queued during an update and the
// FIFO queue the runtime drains while flushing.
package effect

import "fmt"

// Type distinguishes effect kinds.
type Type int

const (
	// TypeNotify tells observers of an emitter that its state changed.
	TypeNotify Type = iota + 1
	// TypeEmit delivers a typed event to listeners of an emitter.
	TypeEmit
	// TypeDefer runs a one-shot callback.
	TypeDefer
)

// String returns the lowercase effect name.
func (t Type) String() string {
	switch t {
	case TypeNotify:
		return "notify"
	case TypeEmit:
		return "emit"
	case TypeDefer:
		return "defer"
	default:
		return fmt.Sprintf("effect(%d)", int(t))
	}
}

// Effect is one queued action. Which fields are meaningful depends on Type:
//
//	Notify: Emitter
//	Emit:   Emitter, Kind, Payload
//	Defer:  Callback
type Effect struct {
	Type     Type
	Emitter  uint64
	Kind     string
	Payload  any
	Callback func()

	// Cycle is stamped by the runtime when the effect is pushed. Subscribers
	// registered in the same cycle do not receive it.
	Cycle uint64
}

// Notify creates a notify effect for emitter.
func Notify(emitter uint64) Effect {
	return Effect{Type: TypeNotify, Emitter: emitter}
}

// Emit creates an event effect for emitter.
func Emit(emitter uint64, kind string, payload any) Effect {
	return Effect{Type: TypeEmit, Emitter: emitter, Kind: kind, Payload: payload}
}

// Defer creates a callback effect.
func Defer(callback func()) Effect {
	return Effect{Type: TypeDefer, Callback: callback}
}
