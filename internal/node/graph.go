// Package node implements the computation graph: settable atoms and derived
// selectors stored in an arena parallel to the entity store.
//
// Atoms hold their value directly. Selectors hold a Computer, a type-erased
// function from read access over the graph to one value. Reading a selector
// checks its computer out of the arena for the duration of the computation,
// so a selector that (directly or through others) reads itself is detected
// as reentrant access instead of recursing forever.
package node

import (
	"github.com/4rchr4y/moss/internal/arena"
)

// Key identifies a node. Keys are never reused.
type Key uint64

type (
	// Slot is a reserved node key awaiting its atom value or computer.
	Slot = arena.Slot[Key]

	// Handle is a strong node reference.
	Handle = arena.Handle[Key]

	// WeakHandle is a non-owning node reference.
	WeakHandle = arena.WeakHandle[Key]
)

// Subject names nodes in contract violations and traces.
const Subject = "node"

// Kind distinguishes atoms from selectors.
type Kind int

const (
	KindAtom Kind = iota + 1
	KindSelector
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAtom:
		return "atom"
	case KindSelector:
		return "selector"
	default:
		return "unknown"
	}
}

// Reader is the read-scoped view a Computer gets over the graph.
type Reader interface {
	// Value returns the current value of the node under key. For atoms this
	// is the stored value, for selectors a fresh computation.
	Value(key Key) any
}

// Removed is a node drained from the graph after its strong count fell to
// zero. Selector computers have already been destroyed.
type Removed struct {
	Key  Key
	Kind Kind
}

// Graph is the node arena.
type Graph struct {
	arena *arena.Arena[Key]
	kinds map[Key]Kind
}

// NewGraph creates an empty graph drawing keys from seq.
func NewGraph(seq *arena.Sequence) *Graph {
	return &Graph{
		arena: arena.New[Key](Subject, seq),
		kinds: make(map[Key]Kind),
	}
}

// Reserve allocates a key with no value.
func (g *Graph) Reserve() Slot {
	return g.arena.Reserve()
}

// InsertAtom populates slot with a settable value.
func (g *Graph) InsertAtom(slot Slot, value any) *Handle {
	g.kinds[slot.ID()] = KindAtom
	return g.arena.Insert(slot, value)
}

// InsertSelector populates slot with a computation.
func (g *Graph) InsertSelector(slot Slot, c Computer) *Handle {
	g.kinds[slot.ID()] = KindSelector
	return g.arena.Insert(slot, c)
}

// Kind returns the kind of key, or zero if the key is unknown.
func (g *Graph) Kind(key Key) Kind {
	return g.kinds[key]
}

// Value implements Reader.
func (g *Graph) Value(key Key) any {
	if g.kinds[key] != KindSelector {
		return g.arena.Read(key)
	}

	lease := g.arena.LeaseID(key)
	defer g.arena.EndLease(lease)

	return lease.Value().(Computer).Apply(g)
}

// Write replaces an atom's value and returns the previous one.
func (g *Graph) Write(key Key, value any) any {
	lease := g.arena.LeaseID(key)
	defer g.arena.EndLease(lease)

	prev := lease.Value()
	lease.Set(value)
	return prev
}

// Update applies fn to an atom's value while holding it exclusively.
// Reading the same atom from inside fn panics with REENTRANT_ACCESS.
func (g *Graph) Update(key Key, fn func(any) any) {
	lease := g.arena.LeaseID(key)
	defer g.arena.EndLease(lease)

	lease.Set(fn(lease.Value()))
}

// IsHeld reports whether key is currently held exclusively.
func (g *Graph) IsHeld(key Key) bool {
	return g.arena.IsLeased(key)
}

// TakeDropped removes nodes whose strong count fell to zero and destroys
// their computers. Each node is reported once.
func (g *Graph) TakeDropped() []Removed {
	dropped := g.arena.TakeDropped()
	if len(dropped) == 0 {
		return nil
	}

	out := make([]Removed, 0, len(dropped))
	for _, d := range dropped {
		out = append(out, g.finalize(d.ID, d.Value))
	}
	return out
}

// Remove deletes a node whose strong count is zero. Panics with
// INVALID_REMOVAL while the node is still referenced.
func (g *Graph) Remove(key Key) Removed {
	return g.finalize(key, g.arena.Remove(key))
}

// StrongCount returns the number of strong handles for key.
func (g *Graph) StrongCount(key Key) int {
	return g.arena.StrongCount(key)
}

// Len returns the number of nodes not yet removed.
func (g *Graph) Len() int {
	return g.arena.Len()
}

func (g *Graph) finalize(key Key, value any) Removed {
	kind := g.kinds[key]
	delete(g.kinds, key)

	if c, ok := value.(Computer); ok && kind == KindSelector {
		c.Destroy()
	}
	return Removed{Key: key, Kind: kind}
}
