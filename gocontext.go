package ctrace

import (
	"context"

	"github.com/Nordstrom/ctrace-pipeline/core"
	ctlog "github.com/Nordstrom/ctrace-pipeline/log"
	"github.com/Nordstrom/ctrace-pipeline/scope"
	"github.com/opentracing/opentracing-go/log"
)

// ContextWithSpan returns a new `context.Context` that holds `span` as the
// active span.
func ContextWithSpan(ctx context.Context, span core.Span) context.Context {
	return core.ContextWithSpan(ctx, span)
}

// SpanFromContext returns the `Span` previously associated with `ctx`, or
// `nil` if no such `Span` could be found.
func SpanFromContext(ctx context.Context) core.Span {
	return core.SpanFromContext(ctx)
}

// CurrentSpan returns the span of the current goroutine's scope, or nil.
func CurrentSpan() core.Span {
	return core.SpanFromContext(scope.Current())
}

// StartSpanFromContext starts a span named name on the global tracer, using
// any span found within ctx as its parent. If no parent could be found, a
// root span is created.
//
// Example usage:
//
//	func SomeFunction(ctx context.Context) {
//		ctx, sp := ctrace.StartSpanFromContext(ctx, "SomeFunction")
//		defer sp.End(time.Time{})
//		...
//	}
func StartSpanFromContext(ctx context.Context, name string, opts ...core.StartOption) (context.Context, core.Span) {
	return Global().Start(ctx, name, opts...)
}

// LogInfo allows the logging of an Info Event based on the
// current context.Context.  If a running span does not exist on the current
// context, nothing is logged.
func LogInfo(ctx context.Context, event string, fields ...log.Field) {
	span := SpanFromContext(ctx)
	if span == nil {
		return
	}
	f := []log.Field{
		ctlog.Event(event),
	}
	f = append(f, fields...)
	span.LogFields(f...)
}

// LogErrorMessage allows the logging of an Error with a Message based on the
// current context.Context.  If a running span does not exist on the current
// context, nothing is logged.
func LogErrorMessage(ctx context.Context, message string, fields ...log.Field) {
	span := SpanFromContext(ctx)
	if span == nil {
		return
	}
	f := []log.Field{
		ctlog.Event(ctlog.EventError),
		ctlog.ErrorKind("message"),
		ctlog.Message(message),
	}
	f = append(f, fields...)
	span.LogFields(f...)
}

// LogErrorObject allows the logging of an Error Object based on the
// current context.Context.  If a running span does not exist on the current
// context, nothing is logged.
func LogErrorObject(ctx context.Context, e error, fields ...log.Field) {
	span := SpanFromContext(ctx)
	if span == nil {
		return
	}
	span.LogFields(append(ctlog.Error("object", e), fields...)...)
}
