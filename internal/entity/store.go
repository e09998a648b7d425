// Package entity owns the mutable application entities of a runtime.
//
// Values are stored type-erased; the runtime package layers typed handles
// (Model[T]) on top. Every mutation goes through Lease / EndLease so that a
// second exclusive access to the same entity is detected, not merely
// disallowed by convention.
package entity

import (
	"github.com/4rchr4y/moss/internal/arena"
)

// ID identifies an entity. Ids are process-unique and never reused.
type ID uint64

type (
	// Slot is a reserved entity id awaiting its value.
	Slot = arena.Slot[ID]

	// Handle is a strong entity reference.
	Handle = arena.Handle[ID]

	// WeakHandle is a non-owning entity reference.
	WeakHandle = arena.WeakHandle[ID]

	// Lease is an exclusive checkout of an entity value.
	Lease = arena.Lease[ID]

	// Dropped is a finalized entity and its last value.
	Dropped = arena.Dropped[ID]
)

// Subject names entities in contract violations and traces.
const Subject = "entity"

// Store is the entity arena.
type Store struct {
	arena *arena.Arena[ID]
}

// NewStore creates an empty store drawing ids from seq.
func NewStore(seq *arena.Sequence) *Store {
	return &Store{arena: arena.New[ID](Subject, seq)}
}

// Reserve allocates an id with no value. O(1).
func (s *Store) Reserve() Slot {
	return s.arena.Reserve()
}

// Insert installs the value for a reserved slot.
func (s *Store) Insert(slot Slot, value any) *Handle {
	return s.arena.Insert(slot, value)
}

// Lease removes the entity value from the store and hands it to the caller.
// Panics with REENTRANT_ACCESS if the entity is already leased.
func (s *Store) Lease(h *Handle) *Lease {
	return s.arena.Lease(h)
}

// EndLease reinserts a leased value.
func (s *Store) EndLease(l *Lease) {
	s.arena.EndLease(l)
}

// Read returns the entity value without leasing it.
// Panics with RELEASED_HANDLE if h was released.
func (s *Store) Read(h *Handle) any {
	return s.arena.ReadHandle(h)
}

// ReadID returns the value stored under id without leasing it.
func (s *Store) ReadID(id ID) any {
	return s.arena.Read(id)
}

// IsLeased reports whether the entity is currently checked out.
func (s *Store) IsLeased(id ID) bool {
	return s.arena.IsLeased(id)
}

// TakeDropped drains entities whose strong count fell to zero.
func (s *Store) TakeDropped() []Dropped {
	return s.arena.TakeDropped()
}

// Remove deletes an entity whose strong count is zero and returns its value.
func (s *Store) Remove(id ID) any {
	return s.arena.Remove(id)
}

// StrongCount returns the number of strong handles for id.
func (s *Store) StrongCount(id ID) int {
	return s.arena.StrongCount(id)
}

// Len returns the number of entities not yet removed.
func (s *Store) Len() int {
	return s.arena.Len()
}
