package effect

// Queue is the FIFO effect queue of one runtime.
//
// Notify effects are deduplicated per emitter: while a Notify for an emitter
// is queued and not yet popped, pushing another one does not append. The
// queued effect takes the newer cycle stamp instead, so it is attributed to
// the latest update that asked for it.
//
// The queue is unbounded so that callbacks can enqueue arbitrarily many
// follow-up effects during a flush. It is confined to the runtime's goroutine
// and carries no locks.
type Queue struct {
	effects []*Effect
	pending map[uint64]*Effect
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		effects: make([]*Effect, 0, 64),
		pending: make(map[uint64]*Effect),
	}
}

// Push appends e. It returns false when e is a Notify that was coalesced
// into one already pending for the same emitter.
func (q *Queue) Push(e Effect) bool {
	if e.Type == TypeNotify {
		if queued, ok := q.pending[e.Emitter]; ok {
			if e.Cycle > queued.Cycle {
				queued.Cycle = e.Cycle
			}
			return false
		}
	}

	stored := &e
	q.effects = append(q.effects, stored)
	if e.Type == TypeNotify {
		q.pending[e.Emitter] = stored
	}
	return true
}

// Pop removes and returns the front effect. Popping a Notify clears the
// emitter's pending mark, so a notify raised while dispatching it is queued
// again rather than dropped.
func (q *Queue) Pop() (Effect, bool) {
	if len(q.effects) == 0 {
		return Effect{}, false
	}

	e := q.effects[0]

	// Nil the slot so callbacks and payloads do not outlive their dispatch
	// through the backing array.
	q.effects[0] = nil

	if len(q.effects) == 1 {
		q.effects = q.effects[:0]
	} else {
		q.effects = q.effects[1:]
	}

	if e.Type == TypeNotify {
		delete(q.pending, e.Emitter)
	}
	return *e, true
}

// IsPending reports whether a Notify for emitter is queued.
func (q *Queue) IsPending(emitter uint64) bool {
	_, ok := q.pending[emitter]
	return ok
}

// Len returns the number of queued effects.
func (q *Queue) Len() int {
	return len(q.effects)
}
