package runtime

import (
	"github.com/4rchr4y/moss/internal/node"
	"github.com/4rchr4y/moss/internal/trace"
)

// Selector is a strong handle to a derived node producing an R.
// Every read recomputes; nothing is cached.
type Selector[R any] struct {
	handle *node.Handle
}

// Key returns the node key.
func (s *Selector[R]) Key() node.Key {
	return s.handle.ID()
}

// Clone returns another strong handle to the same selector.
func (s *Selector[R]) Clone() *Selector[R] {
	return &Selector[R]{handle: s.handle.Clone()}
}

// Release drops this strong reference. The computation is destroyed when
// the node is finalized.
func (s *Selector[R]) Release() {
	s.handle.Release()
}

// SelectorContext is the read-scoped view a selector computes against.
type SelectorContext struct {
	reader node.Reader
	key    node.Key
}

// Key returns the key of the selector being computed.
func (sc *SelectorContext) Key() node.Key {
	return sc.key
}

// Get reads an atom from inside a selector computation.
func Get[T any](sc *SelectorContext, a *Atom[T]) T {
	return sc.reader.Value(a.Key()).(T)
}

// GetSelector reads another selector from inside a selector computation.
// A selector that reaches itself this way panics with REENTRANT_ACCESS.
func GetSelector[R any](sc *SelectorContext, s *Selector[R]) R {
	return sc.reader.Value(s.Key()).(R)
}

// Releaser is a strong handle: *Model, *Atom or *Selector.
type Releaser interface {
	Release()
}

// NewSelector creates a selector computing fn. holds are strong handles the
// selector owns, typically the inputs fn reads; they are released when the
// selector is finalized.
func NewSelector[R any](cx *Context, fn func(sc *SelectorContext) R, holds ...Releaser) *Selector[R] {
	slot := cx.nodes.Reserve()
	key := slot.ID()

	var c node.Computer = node.NewComputer(func(r node.Reader) R {
		cx.record(trace.KindSelectorCompute, uint64(key), "")
		return fn(&SelectorContext{reader: r, key: key})
	})
	if len(holds) > 0 {
		c = &holdingComputer{Computer: c, holds: holds}
	}

	h := cx.nodes.InsertSelector(slot, c)
	cx.record(trace.KindNodeCreate, uint64(key), node.KindSelector.String())
	return &Selector[R]{handle: h}
}

// ReadSelector computes the selector's value.
func ReadSelector[R any](cx *Context, s *Selector[R]) R {
	return cx.nodes.Value(s.Key()).(R)
}

type holdingComputer struct {
	node.Computer
	holds []Releaser
}

func (c *holdingComputer) Destroy() {
	c.Computer.Destroy()
	for _, h := range c.holds {
		h.Release()
	}
	c.holds = nil
}
