// Package arena implements the slot arena shared by the entity store and the
// computation graph.
//
// An arena owns values keyed by stable ids. Ids come from a Sequence shared by
// every arena of one runtime, so an entity id and a node key never collide and
// the subscriber registry can key all three of its tables by a plain uint64.
//
// Lifecycle of a slot:
//
//	Reserve  -> id allocated, strong count 1, no value
//	Insert   -> value installed
//	Lease    -> value physically removed and handed to the caller
//	EndLease -> value reinserted
//	count 0  -> queued in the dropped list
//	TakeDropped / Remove -> slot deleted, id never reused
//
// The arena is confined to one goroutine and carries no locks.
package arena

import (
	"slices"

	"github.com/4rchr4y/moss/internal/fault"
)

// Sequence hands out process-unique ids. Ids start at 1; zero is never issued.
type Sequence struct {
	next uint64
}

// NewSequence creates a sequence whose first id is 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// Next returns a fresh id.
func (s *Sequence) Next() uint64 {
	s.next++
	return s.next
}

// Dropped is a slot whose strong count reached zero, removed from the arena.
// Value is nil when the slot was reserved but never populated.
type Dropped[K ~uint64] struct {
	ID    K
	Value any
}

// Arena owns the values of one kind of slot (entities or nodes).
type Arena[K ~uint64] struct {
	subject string
	seq     *Sequence
	refs    *refCounts[K]
	values  map[K]any
	leased  map[K]struct{}
}

// New creates an arena. subject names the slot kind in contract violations.
func New[K ~uint64](subject string, seq *Sequence) *Arena[K] {
	return &Arena[K]{
		subject: subject,
		seq:     seq,
		refs: &refCounts[K]{
			subject: subject,
			counts:  make(map[K]int),
		},
		values: make(map[K]any),
		leased: make(map[K]struct{}),
	}
}

// Subject returns the slot kind name ("entity" or "node").
func (a *Arena[K]) Subject() string {
	return a.subject
}

// Reserve allocates an id with a strong count of 1 and no value.
// The returned slot's handle can be downgraded before the value exists.
func (a *Arena[K]) Reserve() Slot[K] {
	id := K(a.seq.Next())
	a.refs.counts[id] = 1
	return Slot[K]{handle: &Handle[K]{id: id, refs: a.refs}}
}

// Insert completes two-phase creation and returns the slot's strong handle.
// Each slot is populated once; an abandoned slot cannot be populated.
func (a *Arena[K]) Insert(slot Slot[K], value any) *Handle[K] {
	id := slot.handle.id
	if slot.handle.released {
		fault.Raise(fault.ReleasedHandle(a.subject, uint64(id), "insert"))
	}
	if a.IsPopulated(id) {
		fault.Raise(fault.PopulatedSlot(a.subject, uint64(id)))
	}
	a.values[id] = value
	return slot.handle
}

// Lease checks out the value behind h for exclusive mutation.
func (a *Arena[K]) Lease(h *Handle[K]) *Lease[K] {
	if h.released {
		fault.Raise(fault.ReleasedHandle(a.subject, uint64(h.id), "lease"))
	}
	return a.LeaseID(h.id)
}

// LeaseID checks out the value stored under id. The value is removed from the
// arena until EndLease, so any other access in the meantime is detected.
func (a *Arena[K]) LeaseID(id K) *Lease[K] {
	value := a.take(id, "lease")
	a.leased[id] = struct{}{}
	return &Lease[K]{id: id, value: value}
}

// EndLease reinserts a leased value. It must run exactly once per lease;
// callers defer it so that panicking paths unlease as well.
func (a *Arena[K]) EndLease(l *Lease[K]) {
	if l.ended {
		fault.Raise(fault.ReentrantAccess(a.subject, uint64(l.id), "end lease of"))
	}
	l.ended = true
	delete(a.leased, l.id)
	a.values[l.id] = l.value
}

// ReadHandle returns the value behind h without checking it out.
func (a *Arena[K]) ReadHandle(h *Handle[K]) any {
	if h.released {
		fault.Raise(fault.ReleasedHandle(a.subject, uint64(h.id), "read"))
	}
	return a.Read(h.id)
}

// Read returns the value stored under id without checking it out.
func (a *Arena[K]) Read(id K) any {
	if _, leased := a.leased[id]; leased {
		fault.Raise(fault.ReentrantAccess(a.subject, uint64(id), "read"))
	}
	value, ok := a.values[id]
	if !ok {
		fault.Raise(fault.UnpopulatedSlot(a.subject, uint64(id)))
	}
	return value
}

// IsLeased reports whether id is currently checked out.
func (a *Arena[K]) IsLeased(id K) bool {
	_, leased := a.leased[id]
	return leased
}

// IsPopulated reports whether id holds a value (leased values count as held).
func (a *Arena[K]) IsPopulated(id K) bool {
	if _, ok := a.values[id]; ok {
		return true
	}
	return a.IsLeased(id)
}

// StrongCount returns the number of strong handles for id.
func (a *Arena[K]) StrongCount(id K) int {
	return a.refs.counts[id]
}

// Len returns the number of slots not yet removed, including slots whose
// count reached zero but which have not been drained.
func (a *Arena[K]) Len() int {
	return len(a.refs.counts)
}

// TakeDropped drains slots whose strong count fell to zero since the previous
// call. Each slot is reported exactly once. A slot that is leased at the time
// of the call stays queued and is reported once its lease ends.
func (a *Arena[K]) TakeDropped() []Dropped[K] {
	if len(a.refs.dropped) == 0 {
		return nil
	}

	pending := a.refs.dropped
	a.refs.dropped = nil

	var out []Dropped[K]
	var keep []K
	for _, id := range pending {
		if a.IsLeased(id) {
			keep = append(keep, id)
			continue
		}
		out = append(out, Dropped[K]{ID: id, Value: a.Remove(id)})
	}
	a.refs.dropped = append(keep, a.refs.dropped...)

	return out
}

// Remove deletes the slot and returns its value. Only valid at count zero.
// A removed slot is no longer reported by TakeDropped.
func (a *Arena[K]) Remove(id K) any {
	if count := a.refs.counts[id]; count > 0 {
		fault.Raise(fault.InvalidRemoval(a.subject, uint64(id), count))
	}
	if a.IsLeased(id) {
		fault.Raise(fault.ReentrantAccess(a.subject, uint64(id), "remove"))
	}

	value := a.values[id]
	delete(a.values, id)
	delete(a.refs.counts, id)
	a.refs.dropped = slices.DeleteFunc(a.refs.dropped, func(d K) bool { return d == id })
	return value
}

func (a *Arena[K]) take(id K, op string) any {
	if a.IsLeased(id) {
		fault.Raise(fault.ReentrantAccess(a.subject, uint64(id), op))
	}
	value, ok := a.values[id]
	if !ok {
		fault.Raise(fault.UnpopulatedSlot(a.subject, uint64(id)))
	}
	delete(a.values, id)
	return value
}

// Lease is an exclusive checkout of one slot's value.
type Lease[K ~uint64] struct {
	id    K
	value any
	ended bool
}

// ID returns the leased slot's id.
func (l *Lease[K]) ID() K {
	return l.id
}

// Value returns the checked-out value.
func (l *Lease[K]) Value() any {
	return l.value
}

// Set replaces the value that EndLease will reinsert.
func (l *Lease[K]) Set(value any) {
	l.value = value
}
