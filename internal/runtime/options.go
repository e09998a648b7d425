package runtime

import (
	"log/slog"

	"github.com/4rchr4y/moss/internal/trace"
)

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cx *Context) {
		if logger != nil {
			cx.logger = logger
		}
	}
}

// WithTracer installs a tracer that receives every lifecycle event.
func WithTracer(t trace.Tracer) Option {
	return func(cx *Context) {
		if t != nil {
			cx.tracer = t
		}
	}
}

// WithMaxFlushSteps bounds how many effects a single flush may dispatch
// before it is considered runaway. Non-positive values keep the default.
func WithMaxFlushSteps(n int) Option {
	return func(cx *Context) {
		if n > 0 {
			cx.maxFlushSteps = n
		}
	}
}
