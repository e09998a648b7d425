// Package runtime is the single entry point of the moss reactive core.
//
// A Context composes the entity store, the computation graph, three
// subscriber sets and the effect queue. Collaborators create and mutate state
// through it; mutations enqueue effects; when the outermost Update returns,
// the Context flushes: it finalizes dropped entities and nodes, then pops and
// dispatches effects one at a time, repeating until both are exhausted.
//
// A Context is confined to one goroutine. It carries no locks; work done
// elsewhere must be marshalled back onto the owning goroutine before calling
// Update.
//
// Contract violations (leasing an entity twice, reading a selector from
// inside its own computation, removing a referenced slot) panic with a
// *fault.ContractError.
package runtime

import (
	"log/slog"

	"github.com/4rchr4y/moss/internal/arena"
	"github.com/4rchr4y/moss/internal/effect"
	"github.com/4rchr4y/moss/internal/entity"
	"github.com/4rchr4y/moss/internal/node"
	"github.com/4rchr4y/moss/internal/subscriber"
	"github.com/4rchr4y/moss/internal/trace"
)

// DefaultMaxFlushSteps bounds the number of effects one flush may dispatch.
const DefaultMaxFlushSteps = 100000

// Phase is the dispatcher state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUpdating
	PhaseFlushing
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUpdating:
		return "updating"
	case PhaseFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

type observer struct {
	cycle uint64
	fn    func(cx *Context) bool
}

type listener struct {
	cycle uint64
	kind  EventKind
	fn    func(cx *Context, payload any) bool
}

type releaser struct {
	fn func(cx *Context, value any)
}

// Context is the runtime facade.
type Context struct {
	entities *entity.Store
	nodes    *node.Graph

	observers *subscriber.Set[uint64, observer]
	listeners *subscriber.Set[uint64, listener]
	releasers *subscriber.Set[uint64, releaser]

	queue *effect.Queue

	// depth counts nested Update calls.
	depth    int
	flushing bool

	// cycle advances at every outermost update, before every dispatched
	// effect and before every finalized entity. Effects and subscriptions
	// are stamped with it; a subscription never receives effects stamped
	// with its own cycle.
	cycle uint64

	maxFlushSteps int
	logger        *slog.Logger
	tracer        trace.Tracer
}

// New creates an idle Context.
func New(opts ...Option) *Context {
	seq := arena.NewSequence()
	cx := &Context{
		entities:      entity.NewStore(seq),
		nodes:         node.NewGraph(seq),
		observers:     subscriber.New[uint64, observer](),
		listeners:     subscriber.New[uint64, listener](),
		releasers:     subscriber.New[uint64, releaser](),
		queue:         effect.NewQueue(),
		maxFlushSteps: DefaultMaxFlushSteps,
		logger:        slog.Default(),
		tracer:        trace.Nop{},
	}
	for _, opt := range opts {
		opt(cx)
	}
	return cx
}

// Phase returns the current dispatcher state.
func (cx *Context) Phase() Phase {
	switch {
	case cx.flushing:
		return PhaseFlushing
	case cx.depth > 0:
		return PhaseUpdating
	default:
		return PhaseIdle
	}
}

// Depth returns the number of Update calls currently on the stack.
func (cx *Context) Depth() int {
	return cx.depth
}

// Logger returns the Context's logger.
func (cx *Context) Logger() *slog.Logger {
	return cx.logger
}

// Stats is a snapshot of the runtime's bookkeeping.
type Stats struct {
	Entities         int
	Nodes            int
	PendingEffects   int
	Observers        int
	Listeners        int
	ReleaseListeners int
	Phase            Phase
}

// Stats returns a snapshot of live slots, registrations and queued effects.
// Entities and nodes whose count reached zero but which have not been
// finalized yet are included.
func (cx *Context) Stats() Stats {
	return Stats{
		Entities:         cx.entities.Len(),
		Nodes:            cx.nodes.Len(),
		PendingEffects:   cx.queue.Len(),
		Observers:        cx.observers.Total(),
		Listeners:        cx.listeners.Total(),
		ReleaseListeners: cx.releasers.Total(),
		Phase:            cx.Phase(),
	}
}

func (cx *Context) record(kind trace.Kind, subject uint64, detail string) {
	cx.tracer.Record(trace.Event{Kind: kind, Subject: subject, Detail: detail})
}
