package arena

import (
	"github.com/4rchr4y/moss/internal/fault"
)

type refCounts[K ~uint64] struct {
	subject string
	counts  map[K]int
	dropped []K
}

func (r *refCounts[K]) inc(id K) {
	r.counts[id]++
}

func (r *refCounts[K]) dec(id K) {
	r.counts[id]--
	if r.counts[id] == 0 {
		r.dropped = append(r.dropped, id)
	}
}

// Slot is a reserved id whose value has not been installed yet.
type Slot[K ~uint64] struct {
	handle *Handle[K]
}

// ID returns the reserved id.
func (s Slot[K]) ID() K {
	return s.handle.id
}

// Downgrade returns a weak handle to the reserved slot, usable before the
// value is installed.
func (s Slot[K]) Downgrade() WeakHandle[K] {
	return s.handle.Downgrade()
}

// Abandon gives up a reservation that will never be populated. The slot is
// drained by the next TakeDropped with a nil value.
func (s Slot[K]) Abandon() {
	s.handle.Release()
}

// Handle is a strong reference. While at least one unreleased Handle exists
// the slot stays alive.
//
// Go has no destructors: every Handle must be released exactly once with
// Release. Releasing twice is a no-op.
type Handle[K ~uint64] struct {
	id       K
	refs     *refCounts[K]
	released bool
}

// ID returns the referenced id.
func (h *Handle[K]) ID() K {
	return h.id
}

// Clone returns a new strong handle to the same slot.
func (h *Handle[K]) Clone() *Handle[K] {
	if h.released {
		fault.Raise(fault.ReleasedHandle(h.refs.subject, uint64(h.id), "clone"))
	}
	h.refs.inc(h.id)
	return &Handle[K]{id: h.id, refs: h.refs}
}

// Release drops this handle's strong reference. When the count reaches zero
// the slot is queued for finalization.
func (h *Handle[K]) Release() {
	if h.released {
		return
	}
	h.released = true
	h.refs.dec(h.id)
}

// Released reports whether Release has been called on this handle.
func (h *Handle[K]) Released() bool {
	return h.released
}

// StrongCount returns the slot's current strong count.
func (h *Handle[K]) StrongCount() int {
	return h.refs.counts[h.id]
}

// Downgrade returns a weak handle to the same slot.
func (h *Handle[K]) Downgrade() WeakHandle[K] {
	return WeakHandle[K]{id: h.id, refs: h.refs}
}

// WeakHandle permits lookup-or-fail and never keeps the slot alive.
type WeakHandle[K ~uint64] struct {
	id   K
	refs *refCounts[K]
}

// ID returns the referenced id.
func (w WeakHandle[K]) ID() K {
	return w.id
}

// Upgrade returns a new strong handle if the slot is still referenced.
// After the strong count reached zero it returns false; that is an expected
// outcome, not an error.
func (w WeakHandle[K]) Upgrade() (*Handle[K], bool) {
	if w.refs == nil {
		return nil, false
	}
	if w.refs.counts[w.id] <= 0 {
		return nil, false
	}
	w.refs.inc(w.id)
	return &Handle[K]{id: w.id, refs: w.refs}, true
}
