package runtime

import (
	"github.com/4rchr4y/moss/internal/effect"
	"github.com/4rchr4y/moss/internal/node"
	"github.com/4rchr4y/moss/internal/trace"
)

// Atom is a strong handle to a settable graph node holding a T.
type Atom[T any] struct {
	handle *node.Handle
}

// Key returns the node key.
func (a *Atom[T]) Key() node.Key {
	return a.handle.ID()
}

// Clone returns another strong handle to the same atom.
func (a *Atom[T]) Clone() *Atom[T] {
	return &Atom[T]{handle: a.handle.Clone()}
}

// Release drops this strong reference.
func (a *Atom[T]) Release() {
	a.handle.Release()
}

// NewAtom creates an atom holding value.
func NewAtom[T any](cx *Context, value T) *Atom[T] {
	h := cx.nodes.InsertAtom(cx.nodes.Reserve(), value)
	cx.record(trace.KindNodeCreate, uint64(h.ID()), node.KindAtom.String())
	return &Atom[T]{handle: h}
}

// ReadAtom returns the atom's current value.
func ReadAtom[T any](cx *Context, a *Atom[T]) T {
	return cx.nodes.Value(a.Key()).(T)
}

// WriteAtom replaces the atom's value. Observers of the atom are notified
// only when notify is true; a write without notify is silent.
func WriteAtom[T any](cx *Context, a *Atom[T], value T, notify bool) {
	cx.Update(func(cx *Context) {
		cx.nodes.Write(a.Key(), value)
		cx.recordWrite(a.Key(), notify)
		if notify {
			cx.PushEffect(effect.Notify(uint64(a.Key())))
		}
	})
}

// AtomContext is handed to UpdateAtom callbacks.
type AtomContext struct {
	*Context
	key      node.Key
	notified bool
}

// Notify marks the atom's dependents stale once the update completes.
func (ac *AtomContext) Notify() {
	if ac.notified {
		return
	}
	ac.notified = true
	ac.PushEffect(effect.Notify(uint64(ac.key)))
}

// UpdateAtom applies fn to the atom's value while holding the node
// exclusively. Reading the same atom from inside fn panics with
// REENTRANT_ACCESS.
func UpdateAtom[T any](cx *Context, a *Atom[T], fn func(v *T, ac *AtomContext)) {
	cx.Update(func(cx *Context) {
		ac := &AtomContext{Context: cx, key: a.Key()}
		cx.nodes.Update(a.Key(), func(old any) any {
			v := old.(T)
			fn(&v, ac)
			return v
		})
		cx.recordWrite(a.Key(), ac.notified)
	})
}

// ObserveAtom registers fn to run whenever a is written with notification.
func ObserveAtom[T any](cx *Context, a *Atom[T], fn func(cx *Context)) *Subscription {
	weak := a.handle.Downgrade()
	return cx.registerObserver(uint64(a.Key()), func(cx *Context) bool {
		h, ok := weak.Upgrade()
		if !ok {
			return false
		}
		defer h.Release()
		fn(cx)
		return true
	})
}

func (cx *Context) recordWrite(key node.Key, notify bool) {
	detail := "silent"
	if notify {
		detail = "notify"
	}
	cx.record(trace.KindAtomWrite, uint64(key), detail)
}
