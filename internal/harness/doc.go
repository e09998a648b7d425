// Package harness runs YAML scenarios against a live moss runtime.
//
// A scenario is a list of steps over named counters (entities holding an
// int count), int atoms, string selectors and subscriptions. Every run uses a
// fresh runtime.Context, a deterministic clock and a fixed session id, so the
// recorded trace is identical from run to run and can be compared against a
// golden file.
//
// # Scenario Format
//
//	name: counter_notify
//	description: "observer sees the new count once"
//	steps:
//	  - op: create
//	    name: counter
//	    count: 0
//	  - op: observe
//	    name: watcher
//	    target: counter
//	  - op: update
//	    target: counter
//	    delta: 1
//	    notify: true
//	  - op: expect
//	    calls: { watcher: 1 }
//	    seen: { watcher: 1 }
//	assertions:
//	  - type: trace_count
//	    kind: effect.notify
//	    count: 1
//
// # Steps
//
//   - create: new counter entity
//   - observe: observer on a counter or atom
//   - subscribe: listener for one event kind on a counter
//   - on_release: release listener on a counter
//   - close: close a named subscription
//   - update: add delta to a counter, optionally notify and emit
//   - drop: release the harness's strong handle to a counter, atom or selector
//   - flush: run an empty update so dropped entities are finalized
//   - atom / write_atom: create and write an int atom
//   - selector / read_selector: format an atom's value and read it back
//   - nested_update: run child steps inside one update
//   - expect: check counts, callback invocations and live totals
//
// observe, subscribe and on_release accept a `then` list that runs inside the
// callback. Any step may name the contract violation it must raise with
// `error`.
//
// # Assertion Types
//
//   - trace_contains: an event with the kind (and optional subject, detail)
//   - trace_count: exactly N events with the kind (and optional subject)
//   - trace_order: the kinds occur in this order, not necessarily adjacent
package harness
