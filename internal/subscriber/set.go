// Package subscriber implements keyed multi-maps of callbacks.
//
// A runtime keeps three independent Sets keyed by entity id or node key:
// observers, typed event listeners and release listeners. Registrations are
// inert until their activation function runs; the runtime schedules that as
// a deferred effect so a subscriber never sees dispatches from the update that
// created it.
package subscriber

// Set is a keyed multi-map of subscriber values.
type Set[K comparable, V any] struct {
	buckets map[K][]*entry[V]
}

type entry[V any] struct {
	value   V
	active  bool
	removed bool
}

// New creates an empty set.
func New[K comparable, V any]() *Set[K, V] {
	return &Set[K, V]{buckets: make(map[K][]*entry[V])}
}

// Insert registers value under key. The registration stays inactive until
// activate is called; activate is a no-op if the registration was removed
// in the meantime.
func (s *Set[K, V]) Insert(key K, value V) (*Subscription, func()) {
	e := &entry[V]{value: value}
	s.buckets[key] = append(s.buckets[key], e)

	sub := &Subscription{unsubscribe: func() { s.remove(key, e) }}
	activate := func() {
		if !e.removed {
			e.active = true
		}
	}
	return sub, activate
}

// Retain calls fn for every active registration under key, in insertion
// order, and removes those for which fn returns false.
//
// fn may insert into or remove from the set, including under the same key.
// Registrations inserted during the call are not visited; registrations
// removed during the call are skipped if not yet visited.
func (s *Set[K, V]) Retain(key K, fn func(V) bool) {
	snapshot := s.buckets[key]
	for _, e := range snapshot {
		if e.removed || !e.active {
			continue
		}
		if !fn(e.value) {
			s.remove(key, e)
		}
	}
}

// Remove removes every registration under key and returns their values in
// insertion order. Inactive registrations are included.
func (s *Set[K, V]) Remove(key K) []V {
	bucket := s.buckets[key]
	if len(bucket) == 0 {
		return nil
	}
	delete(s.buckets, key)

	values := make([]V, 0, len(bucket))
	for _, e := range bucket {
		e.removed = true
		values = append(values, e.value)
	}
	return values
}

// Len returns the number of registrations under key, active or not.
func (s *Set[K, V]) Len(key K) int {
	return len(s.buckets[key])
}

// Total returns the number of registrations across all keys.
func (s *Set[K, V]) Total() int {
	n := 0
	for _, bucket := range s.buckets {
		n += len(bucket)
	}
	return n
}

// remove copies the bucket instead of filtering in place so a Retain
// snapshot taken before the removal stays intact.
func (s *Set[K, V]) remove(key K, target *entry[V]) {
	if target.removed {
		return
	}
	target.removed = true

	bucket := s.buckets[key]
	kept := make([]*entry[V], 0, len(bucket))
	for _, e := range bucket {
		if e != target {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.buckets, key)
		return
	}
	s.buckets[key] = kept
}
