// Package concurrent carries the caller's context into work that runs on
// other goroutines.
package concurrent

import (
	"context"
	"sync/atomic"

	"github.com/Nordstrom/ctrace-pipeline/scope"
	godebug "github.com/tj/go-debug"
)

var debug = godebug.Debug("ctrace:concurrent")

const (
	pending int32 = iota
	started
	cancelled
)

// Task is a unit of work bound to the context it was created in. It runs
// at most once; a task that is cancelled instead never runs.
type Task struct {
	ctx   context.Context
	fn    func(ctx context.Context)
	cont  *scope.Continuation
	state atomic.Int32

	// onCancel runs after a successful Cancel.
	onCancel func()
}

// Wrap binds fn to ctx. The span in ctx is kept alive until the task has
// run or been cancelled.
func Wrap(ctx context.Context, fn func(ctx context.Context)) *Task {
	c := scope.Capture(ctx)
	return &Task{ctx: c.Context(), fn: fn, cont: c}
}

func bare(ctx context.Context, fn func(ctx context.Context)) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Task{ctx: ctx, fn: fn}
}

// Run runs the task on the calling goroutine with its context current.
// Later calls, and calls after Cancel, do nothing.
func (t *Task) Run() {
	if !t.state.CompareAndSwap(pending, started) {
		return
	}
	var s *scope.Scope
	if t.cont != nil {
		s = t.cont.Activate()
	} else {
		s = scope.MakeCurrent(t.ctx)
	}
	defer s.Close()
	t.fn(t.ctx)
}

// Cancel prevents a pending task from running and releases its context.
// It reports whether the task was pending.
func (t *Task) Cancel() bool {
	if !t.state.CompareAndSwap(pending, cancelled) {
		return false
	}
	if t.cont != nil {
		t.cont.Close()
	}
	if t.onCancel != nil {
		t.onCancel()
	}
	return true
}

// Go runs fn on a new goroutine under ctx.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	t := Wrap(ctx, fn)
	go t.Run()
}
