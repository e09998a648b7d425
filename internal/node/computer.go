package node

// Computer is the type-erased computation behind a selector.
//
// Apply produces one value from read access over the graph. Destroy releases
// the computation and runs exactly once, when the selector node is removed.
type Computer interface {
	Apply(r Reader) any
	Destroy()
}

// NewComputer wraps a typed closure as a Computer.
func NewComputer[R any](fn func(Reader) R) Computer {
	return &computer[R]{fn: fn}
}

type computer[R any] struct {
	fn func(Reader) R
}

func (c *computer[R]) Apply(r Reader) any {
	if c.fn == nil {
		panic("node: apply on destroyed computer")
	}
	return c.fn(r)
}

// Destroy drops the closure so whatever it captured can be collected.
func (c *computer[R]) Destroy() {
	c.fn = nil
}
