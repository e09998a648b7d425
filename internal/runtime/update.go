package runtime

import (
	"github.com/4rchr4y/moss/internal/effect"
	"github.com/4rchr4y/moss/internal/fault"
	"github.com/4rchr4y/moss/internal/trace"
)

// Update runs fn as one update. Updates nest; effects pushed by any of them
// are flushed once, after the outermost fn returns. An Update called while
// the Context is flushing runs fn immediately and leaves the effects it
// pushes to the flush already in progress.
func (cx *Context) Update(fn func(cx *Context)) {
	if cx.depth == 0 && !cx.flushing {
		cx.cycle++
	}

	cx.depth++
	defer func() { cx.depth-- }()

	fn(cx)

	if !cx.flushing && cx.depth == 1 {
		cx.flush()
	}
}

// UpdateResult is Update for a callback that returns a value.
func UpdateResult[R any](cx *Context, fn func(cx *Context) R) R {
	var result R
	cx.Update(func(cx *Context) {
		result = fn(cx)
	})
	return result
}

// PushEffect enqueues e for the next flush. A Notify for an emitter that
// already has one queued is coalesced into it.
//
// PushEffect does not flush by itself; call it from inside Update, or use
// the Notify, Emit and Defer helpers, which do.
func (cx *Context) PushEffect(e effect.Effect) {
	e.Cycle = cx.cycle

	if !cx.queue.Push(e) {
		cx.record(trace.KindEffectCoalesce, e.Emitter, e.Type.String())
		return
	}
	cx.record(trace.KindEffectEnqueue, e.Emitter, effectDetail(e))
}

// Defer schedules fn to run during the flush of the current update, after
// every effect queued before it.
func (cx *Context) Defer(fn func(cx *Context)) {
	cx.Update(func(cx *Context) {
		cx.PushEffect(effect.Defer(func() { fn(cx) }))
	})
}

func (cx *Context) flush() {
	cx.flushing = true
	defer func() { cx.flushing = false }()

	quota := newFlushQuota(cx.maxFlushSteps)
	begun := false
	begin := func() {
		if !begun {
			begun = true
			cx.record(trace.KindFlushBegin, 0, "")
		}
	}

	for {
		cx.releaseDropped(begin)

		e, ok := cx.queue.Pop()
		if !ok {
			break
		}
		begin()

		if err := quota.check(); err != nil {
			cx.logger.Error("flush quota exceeded",
				"steps", quota.current,
				"limit", quota.maxSteps,
				"pending", cx.queue.Len(),
			)
			fault.Raise(err)
		}

		cx.cycle++
		cx.dispatch(e)
	}

	if begun {
		cx.record(trace.KindFlushEnd, 0, "")
		cx.logger.Debug("flush complete", "steps", quota.current)
	}
}

// releaseDropped finalizes every entity and node whose strong count reached
// zero, repeating until a pass finds nothing, since release callbacks may
// drop more handles.
func (cx *Context) releaseDropped(begin func()) {
	for {
		entities := cx.entities.TakeDropped()
		nodes := cx.nodes.TakeDropped()
		if len(entities) == 0 && len(nodes) == 0 {
			return
		}
		begin()

		for _, d := range entities {
			cx.cycle++
			id := uint64(d.ID)

			cx.observers.Remove(id)
			cx.listeners.Remove(id)
			releasers := cx.releasers.Remove(id)

			cx.record(trace.KindEntityFinalize, id, "")
			cx.logger.Debug("entity finalized", "id", id, "release_listeners", len(releasers))

			// Abandoned reservations never had a value to hand out.
			if d.Value == nil {
				continue
			}
			for _, r := range releasers {
				cx.record(trace.KindEntityRelease, id, "")
				r.fn(cx, d.Value)
			}
		}

		for _, n := range nodes {
			key := uint64(n.Key)
			cx.observers.Remove(key)
			cx.record(trace.KindNodeFinalize, key, n.Kind.String())
			cx.logger.Debug("node finalized", "key", key, "kind", n.Kind.String())
		}
	}
}

func (cx *Context) dispatch(e effect.Effect) {
	cx.logger.Debug("dispatch effect", "type", e.Type.String(), "emitter", e.Emitter)

	switch e.Type {
	case effect.TypeNotify:
		cx.record(trace.KindNotify, e.Emitter, "")
		cx.observers.Retain(e.Emitter, func(o observer) bool {
			if o.cycle == e.Cycle {
				return true
			}
			return o.fn(cx)
		})

	case effect.TypeEmit:
		cx.record(trace.KindEmit, e.Emitter, e.Kind)
		kind := EventKind(e.Kind)
		cx.listeners.Retain(e.Emitter, func(l listener) bool {
			if l.kind != kind || l.cycle == e.Cycle {
				return true
			}
			return l.fn(cx, e.Payload)
		})

	case effect.TypeDefer:
		cx.record(trace.KindDefer, 0, "")
		if e.Callback != nil {
			e.Callback()
		}
	}
}

func effectDetail(e effect.Effect) string {
	if e.Type == effect.TypeEmit {
		return e.Type.String() + ":" + e.Kind
	}
	return e.Type.String()
}
