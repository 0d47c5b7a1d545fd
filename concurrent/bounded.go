package concurrent

import (
	"context"

	"github.com/pkg/errors"
)

// ErrSaturated is returned by Bounded.Submit when every slot is taken.
var ErrSaturated = errors.New("submitter is saturated")

// Bounded limits how much work submitted through it may be queued or
// running on the Submitter it wraps.
type Bounded struct {
	next  Submitter
	slots chan struct{}
}

// NewBounded wraps next so that at most max submissions are outstanding.
// If max <= 0, defaults to 1.
func NewBounded(next Submitter, max int) *Bounded {
	if max <= 0 {
		max = 1
	}
	return &Bounded{next: next, slots: make(chan struct{}, max)}
}

// Submit hands fn to the wrapped Submitter, or fails with ErrSaturated
// without blocking.
func (b *Bounded) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	select {
	case b.slots <- struct{}{}:
	default:
		return ErrSaturated
	}
	return submit(ctx, fn, func(t *Task) error {
		nested := t.onCancel
		t.onCancel = func() {
			b.release()
			if nested != nil {
				nested()
			}
		}
		err := b.next.Submit(context.WithValue(t.ctx, delegateKey{}, t), func(context.Context) {
			defer b.release()
			t.Run()
		})
		if err != nil {
			t.Cancel()
			return errors.Wrap(err, "bounded submit")
		}
		return nil
	})
}

// Outstanding returns the number of submissions not yet finished.
func (b *Bounded) Outstanding() int {
	return len(b.slots)
}

func (b *Bounded) release() {
	<-b.slots
}
