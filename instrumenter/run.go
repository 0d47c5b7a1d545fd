package instrumenter

import (
	"context"

	"github.com/pkg/errors"
)

// Run wraps fn in the instrumenter's lifecycle: ShouldStart, Start, fn with
// the new context, End with fn's result. A panic in fn is recorded as an
// error on the span and then re-raised unchanged.
func Run[REQ, RES any](
	parent context.Context,
	inst *Instrumenter[REQ, RES],
	req REQ,
	fn func(ctx context.Context) (RES, error),
) (res RES, err error) {
	if !inst.ShouldStart(parent, req) {
		return fn(parent)
	}
	ctx := inst.Start(parent, req)
	defer func() {
		if r := recover(); r != nil {
			var zero RES
			inst.End(ctx, req, zero, PanicError(r))
			panic(r)
		}
		inst.End(ctx, req, res, err)
	}()
	return fn(ctx)
}

// PanicError converts a recovered value into an error.
func PanicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return errors.Wrap(err, "panic")
	}
	return errors.Errorf("panic: %v", r)
}
