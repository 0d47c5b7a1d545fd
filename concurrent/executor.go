package concurrent

import (
	"context"
	"runtime"
	"sync"

	"github.com/Nordstrom/ctrace-pipeline/calldepth"
	"github.com/eapache/queue"
	"github.com/pkg/errors"
)

// ErrExecutorClosed is returned by Submit after Shutdown.
var ErrExecutorClosed = errors.New("executor is closed")

var submitKey = calldepth.ForType[Executor]()

// Submitter accepts work to run asynchronously under the given context.
type Submitter interface {
	Submit(ctx context.Context, fn func(ctx context.Context)) error
}

// delegateKey marks the context a wrapping Submitter hands to the one it
// delegates to. The value is the wrapper's task.
type delegateKey struct{}

// submit builds the task for fn and passes it to enqueue. Only the
// outermost submission on a goroutine captures ctx. A nested submission
// gets a bare task, and cancelling it cancels the delegating task.
func submit(ctx context.Context, fn func(ctx context.Context), enqueue func(*Task) error) error {
	var t *Task
	if calldepth.Increment(submitKey) > 0 {
		defer calldepth.Decrement(submitKey)
		t = bare(ctx, fn)
		if outer, ok := ctx.Value(delegateKey{}).(*Task); ok {
			t.onCancel = func() { outer.Cancel() }
		}
	} else {
		defer calldepth.Reset(submitKey)
		t = Wrap(ctx, fn)
	}
	return enqueue(t)
}

// Executor runs submitted work on a fixed pool of goroutines in FIFO
// order. Each submission carries the submitter's context.
type Executor struct {
	mu     sync.Mutex
	ready  *sync.Cond
	tasks  *queue.Queue
	closed bool
	wg     sync.WaitGroup
}

// NewExecutor starts an executor with n workers. If n <= 0, defaults to
// runtime.NumCPU().
func NewExecutor(n int) *Executor {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	e := &Executor{tasks: queue.New()}
	e.ready = sync.NewCond(&e.mu)
	e.wg.Add(n)
	for i := 0; i < n; i++ {
		go e.work()
	}
	return e
}

// Submit queues fn to run under ctx. Only the outermost Submit on a
// goroutine captures ctx; a Submit nested inside another Submitter's
// Submit, e.g. under Bounded, reuses the context the outer one captured.
func (e *Executor) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	return submit(ctx, fn, e.Execute)
}

// Execute queues a task built with Wrap.
func (e *Executor) Execute(t *Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		t.Cancel()
		return ErrExecutorClosed
	}
	e.tasks.Add(t)
	e.ready.Signal()
	return nil
}

// Pending returns the number of queued tasks.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tasks.Length()
}

// Shutdown stops accepting work, cancels every queued task and waits for
// running tasks to finish. It returns the number of cancelled tasks.
func (e *Executor) Shutdown() int {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0
	}
	e.closed = true
	n := 0
	for e.tasks.Length() > 0 {
		if e.tasks.Remove().(*Task).Cancel() {
			n++
		}
	}
	e.ready.Broadcast()
	e.mu.Unlock()

	e.wg.Wait()
	return n
}

func (e *Executor) work() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.tasks.Length() == 0 && !e.closed {
			e.ready.Wait()
		}
		if e.tasks.Length() == 0 {
			e.mu.Unlock()
			return
		}
		t := e.tasks.Remove().(*Task)
		e.mu.Unlock()
		run(t)
	}
}

// run keeps the worker alive when a task panics.
func run(t *Task) {
	defer func() {
		if r := recover(); r != nil {
			debug("task panicked: %v", r)
		}
	}()
	t.Run()
}
