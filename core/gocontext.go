package core

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
)

type activeKey struct{}

// active is the innermost span entry of a context. span is nil when the
// entry only carries a remote span context.
type active struct {
	span Span
	sc   SpanContext
}

func contextWithActive(ctx context.Context, sp Span, sc SpanContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	var osp opentracing.Span
	if sp != nil {
		osp = sp
	}
	ctx = opentracing.ContextWithSpan(ctx, osp)
	return context.WithValue(ctx, activeKey{}, active{span: sp, sc: sc})
}

// ContextWithSpan returns a new `context.Context` that holds a reference to
// `span`. The span also becomes visible to opentracing.SpanFromContext.
func ContextWithSpan(ctx context.Context, sp Span) context.Context {
	if sp == nil {
		return ctx
	}
	return contextWithActive(ctx, sp, sp.RawContext())
}

// ContextWithRemoteSpanContext returns a new `context.Context` whose parent
// for new spans is sc. It holds no local span.
func ContextWithRemoteSpanContext(ctx context.Context, sc SpanContext) context.Context {
	if sc == nil || !sc.IsValid() {
		return ctx
	}
	return contextWithActive(ctx, nil, sc)
}

// SpanFromContext returns the `Span` previously associated with `ctx`, or
// `nil` if no such `Span` could be found.
func SpanFromContext(ctx context.Context) Span {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(activeKey{}).(active)
	return a.span
}

// SpanContextFromContext returns the span context new spans started from
// ctx use as their parent: the local span's context or an extracted remote
// one, whichever was added last.
func SpanContextFromContext(ctx context.Context) SpanContext {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(activeKey{}).(active)
	if !ok {
		return nil
	}
	if a.span != nil {
		return a.span.RawContext()
	}
	return a.sc
}
