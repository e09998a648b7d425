package runtime

import (
	"github.com/4rchr4y/moss/internal/subscriber"
)

// Subscription guards an observer or listener registration. Close removes
// it, Detach keeps it for the emitter's lifetime.
type Subscription = subscriber.Subscription

// EventKind tags a typed event. Listeners only receive events whose kind
// matches the kind they registered for.
type EventKind string

// Event is a typed event payload. EventKind must not depend on the
// receiver's fields: Subscribe calls it on the zero value of the listener's
// event type to learn which kind to register for. Event types are expected
// to be value types.
type Event interface {
	EventKind() EventKind
}

// Observe registers fn to run whenever target is notified. fn receives a
// strong handle that is released after it returns. The observer stays
// registered until the subscription is closed or target is finalized.
func Observe[T any](cx *Context, target *Model[T], fn func(target *Model[T], cx *Context)) *Subscription {
	return ObserveWhile(cx, target, func(target *Model[T], cx *Context) bool {
		fn(target, cx)
		return true
	})
}

// ObserveWhile is Observe where fn decides whether to stay registered.
func ObserveWhile[T any](cx *Context, target *Model[T], fn func(target *Model[T], cx *Context) bool) *Subscription {
	weak := target.Downgrade()
	return cx.registerObserver(uint64(target.ID()), func(cx *Context) bool {
		m, ok := weak.Upgrade()
		if !ok {
			return false
		}
		defer m.Release()
		return fn(m, cx)
	})
}

// Subscribe registers fn for events of type E emitted by target.
func Subscribe[T any, E Event](cx *Context, target *Model[T], fn func(target *Model[T], ev E, cx *Context)) *Subscription {
	return SubscribeWhile(cx, target, func(target *Model[T], ev E, cx *Context) bool {
		fn(target, ev, cx)
		return true
	})
}

// SubscribeWhile is Subscribe where fn decides whether to stay registered.
func SubscribeWhile[T any, E Event](cx *Context, target *Model[T], fn func(target *Model[T], ev E, cx *Context) bool) *Subscription {
	var zero E
	weak := target.Downgrade()
	return cx.registerListener(uint64(target.ID()), zero.EventKind(), func(cx *Context, payload any) bool {
		ev, ok := payload.(E)
		if !ok {
			// Same kind tag, different Go type: not ours.
			return true
		}
		m, ok := weak.Upgrade()
		if !ok {
			return false
		}
		defer m.Release()
		return fn(m, ev, cx)
	})
}

// SubscribeKind registers fn for events of an explicit kind, receiving the
// payload untyped.
func SubscribeKind[T any](cx *Context, target *Model[T], kind EventKind, fn func(target *Model[T], ev Event, cx *Context)) *Subscription {
	weak := target.Downgrade()
	return cx.registerListener(uint64(target.ID()), kind, func(cx *Context, payload any) bool {
		m, ok := weak.Upgrade()
		if !ok {
			return false
		}
		defer m.Release()
		ev, _ := payload.(Event)
		fn(m, ev, cx)
		return true
	})
}

// OnRelease registers fn to run once with target's final value when target
// is finalized.
func OnRelease[T any](cx *Context, target *Model[T], fn func(v *T, cx *Context)) *Subscription {
	return cx.registerRelease(uint64(target.ID()), func(cx *Context, value any) {
		fn(value.(*T), cx)
	})
}

// ObserveIn registers an observer on target owned by the entity behind mc.
// fn runs with that entity leased. Once the owning entity is gone the
// observer removes itself.
func ObserveIn[T, W any](mc *ModelContext[T], target *Model[W], fn func(this *T, target *Model[W], mc *ModelContext[T])) *Subscription {
	self := mc.Handle()
	return ObserveWhile(mc.Context, target, func(target *Model[W], cx *Context) bool {
		owner, ok := self.Upgrade()
		if !ok {
			return false
		}
		defer owner.Release()

		owner.Update(cx, func(this *T, mc *ModelContext[T]) {
			fn(this, target, mc)
		})
		return true
	})
}

// SubscribeIn registers a listener on target owned by the entity behind mc.
// fn runs with that entity leased. Once the owning entity is gone the
// listener removes itself.
func SubscribeIn[T, W any, E Event](mc *ModelContext[T], target *Model[W], fn func(this *T, target *Model[W], ev E, mc *ModelContext[T])) *Subscription {
	self := mc.Handle()
	return SubscribeWhile(mc.Context, target, func(target *Model[W], ev E, cx *Context) bool {
		owner, ok := self.Upgrade()
		if !ok {
			return false
		}
		defer owner.Release()

		owner.Update(cx, func(this *T, mc *ModelContext[T]) {
			fn(this, target, ev, mc)
		})
		return true
	})
}

func (cx *Context) registerObserver(key uint64, fn func(cx *Context) bool) *Subscription {
	return UpdateResult(cx, func(cx *Context) *Subscription {
		sub, activate := cx.observers.Insert(key, observer{cycle: cx.cycle, fn: fn})
		cx.Defer(func(*Context) { activate() })
		return sub
	})
}

func (cx *Context) registerListener(key uint64, kind EventKind, fn func(cx *Context, payload any) bool) *Subscription {
	return UpdateResult(cx, func(cx *Context) *Subscription {
		sub, activate := cx.listeners.Insert(key, listener{cycle: cx.cycle, kind: kind, fn: fn})
		cx.Defer(func(*Context) { activate() })
		return sub
	})
}

// Release listeners fire on finalization whether or not they were activated.
func (cx *Context) registerRelease(key uint64, fn func(cx *Context, value any)) *Subscription {
	return UpdateResult(cx, func(cx *Context) *Subscription {
		sub, activate := cx.releasers.Insert(key, releaser{fn: fn})
		cx.Defer(func(*Context) { activate() })
		return sub
	})
}
