package scope

import (
	"context"
	"sync/atomic"

	"github.com/Nordstrom/ctrace-pipeline/core"
)

// Continuation carries a context to another goroutine. While it is open the
// captured span stays retained, so the tracer's completion hook waits for
// the forked work.
type Continuation struct {
	ctx       context.Context
	span      core.Span
	activated atomic.Bool
	released  atomic.Bool
}

// Capture captures ctx. If ctx holds a span that has already completed the
// continuation carries the context without retaining anything.
func Capture(ctx context.Context) *Continuation {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Continuation{ctx: ctx}
	if sp := core.SpanFromContext(ctx); sp != nil && sp.Retain() {
		c.span = sp
	}
	return c
}

// CaptureCurrent captures the calling goroutine's current context.
func CaptureCurrent() *Continuation {
	return Capture(Current())
}

// Context returns the captured context.
func (c *Continuation) Context() context.Context {
	return c.ctx
}

// Activate makes the captured context current on the calling goroutine.
// Closing the returned scope restores the previous context and closes the
// continuation. A continuation is meant to be activated once; later
// activations still set the context but no longer own the span.
func (c *Continuation) Activate() *Scope {
	return c.ActivateIn(defaultStorage())
}

// ActivateIn is Activate against a specific storage.
func (c *Continuation) ActivateIn(st Storage) *Scope {
	if !c.activated.CompareAndSwap(false, true) {
		debug("continuation activated more than once")
		return activate(st, c.ctx, nil)
	}
	return activate(st, c.ctx, c.Close)
}

// Close releases the captured span without activating it. Safe to call
// more than once and from any goroutine.
func (c *Continuation) Close() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	if c.span != nil {
		c.span.Release()
	}
}
