// Package scope tracks the current context of each goroutine and hands
// spans across goroutines with continuations.
//
// A goroutine that is about to fork work captures a Continuation from its
// context. The forked goroutine activates it, which makes the captured
// context current there and keeps the captured span alive until the scope
// or the continuation is closed.
package scope

import (
	"context"
	"sync/atomic"

	godebug "github.com/tj/go-debug"
)

var debug = godebug.Debug("ctrace:scope")

// Scope is an activation of a context. Closing it restores the context that
// was current before. Scopes must be closed on the goroutine that opened
// them, innermost first.
type Scope struct {
	storage Storage
	ctx     context.Context
	prev    context.Context
	closed  atomic.Bool
	onClose func()
}

// Context returns the context the scope activated.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Close restores the previous context. Only the first call has an effect.
func (s *Scope) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if cur := s.storage.Get(); cur != s.ctx {
		debug("scope closed out of order")
	}
	s.storage.Set(s.prev)
	if s.onClose != nil {
		s.onClose()
	}
}

func activate(st Storage, ctx context.Context, onClose func()) *Scope {
	s := &Scope{storage: st, ctx: ctx, prev: st.Get(), onClose: onClose}
	st.Set(ctx)
	return s
}

// Current returns the calling goroutine's current context, or
// context.Background if none is active.
func Current() context.Context {
	if ctx := defaultStorage().Get(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// MakeCurrent makes ctx the calling goroutine's current context until the
// returned scope is closed.
func MakeCurrent(ctx context.Context) *Scope {
	if ctx == nil {
		ctx = context.Background()
	}
	return activate(defaultStorage(), ctx, nil)
}
