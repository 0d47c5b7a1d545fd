// Package instrumenter is the library agnostic span lifecycle shared by all
// adapters. An adapter supplies its request and response types plus
// extractors; an Instrumenter decides whether to trace a call, starts the
// span with the right parent, name, kind and attributes, propagates it, and
// ends it with the call's outcome.
package instrumenter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/ext"
	godebug "github.com/tj/go-debug"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var debug = godebug.Debug("ctrace:instrumenter")

// OperationListener observes operations without touching the span, e.g. to
// record metrics. OnStart may return a derived context that is later passed
// to OnEnd.
type OperationListener interface {
	OnStart(ctx context.Context, attrs []attribute.KeyValue, start time.Time) context.Context
	OnEnd(ctx context.Context, attrs []attribute.KeyValue, end time.Time)
}

type kindKey struct {
	kind trace.SpanKind
}

// ending lets exactly one End call per started span record the outcome.
type ending struct {
	span    core.Span
	claimed atomic.Bool
}

type endingKey struct{}

// SpanFromContextByKind returns the innermost span of kind started by an
// Instrumenter in ctx's chain.
func SpanFromContextByKind(ctx context.Context, kind trace.SpanKind) core.Span {
	sp, _ := ctx.Value(kindKey{kind}).(core.Span)
	return sp
}

// ServerSpanFromContext returns the innermost SERVER span in ctx.
func ServerSpanFromContext(ctx context.Context) core.Span {
	return SpanFromContextByKind(ctx, trace.SpanKindServer)
}

// Instrumenter runs the span lifecycle for one instrumented library. It
// holds no per call state and is safe for concurrent use.
type Instrumenter[REQ, RES any] struct {
	tracer     core.Tracer
	name       string
	spanName   SpanNameExtractor[REQ]
	spanKind   SpanKindExtractor[REQ]
	extractors []AttributesExtractor[REQ, RES]
	status     SpanStatusExtractor[REQ, RES]
	listeners  []OperationListener
	config     Config
	propagator core.Propagator
	setter     core.Setter[REQ]
	getter     core.Getter[REQ]
}

// Config returns the instrumenter's configuration.
func (i *Instrumenter[REQ, RES]) Config() Config {
	return i.config
}

// ShouldStart reports whether a span should be started for req under
// parent. It is false when the instrumenter is disabled, or when nested
// suppression is on and parent already carries a span of the same
// non-internal kind.
func (i *Instrumenter[REQ, RES]) ShouldStart(parent context.Context, req REQ) bool {
	if !i.config.Enabled {
		return false
	}
	if !i.config.SuppressNestedSpans {
		return true
	}
	kind := i.kindOf(req)
	if kind == trace.SpanKindInternal {
		return true
	}
	return SpanFromContextByKind(parent, kind) == nil
}

// Start starts a span for req and returns parent extended with it. Server
// and consumer instrumenters first extract a remote parent from req; client
// and producer instrumenters inject the new span into req.
func (i *Instrumenter[REQ, RES]) Start(parent context.Context, req REQ) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	kind := i.kindOf(req)
	name := i.nameOf(req)

	if i.getter != nil {
		parent = core.Extract(parent, i.propagator, req, i.getter)
	}

	attrs := NewAttributesBuilder()
	if i.name != "" {
		attrs.Put(attribute.String(ext.ComponentKey, i.name))
	}
	for _, e := range i.extractors {
		i.onStart(e, attrs, parent, req)
	}

	ctx, sp := i.tracer.Start(parent, name,
		core.WithSpanKind(kind),
		core.WithAttributes(attrs.Build()...),
	)
	ctx = context.WithValue(ctx, kindKey{kind}, sp)
	ctx = context.WithValue(ctx, endingKey{}, &ending{span: sp})

	if len(i.listeners) > 0 {
		started := sp.Attributes()
		for _, l := range i.listeners {
			ctx = l.OnStart(ctx, started, sp.StartTime())
		}
	}

	if i.setter != nil {
		core.Inject(ctx, i.propagator, req, i.setter)
	}
	return ctx
}

// End ends the span Start put in ctx. Extractors contribute end attributes,
// the status extractor sets the status, and a non-nil err is recorded.
// Only the first End call for a span takes effect, including calls racing
// on different goroutines.
func (i *Instrumenter[REQ, RES]) End(ctx context.Context, req REQ, res RES, err error) {
	sp := core.SpanFromContext(ctx)
	if sp == nil || sp.IsEnded() {
		return
	}
	if e, ok := ctx.Value(endingKey{}).(*ending); ok && e.span == sp {
		if !e.claimed.CompareAndSwap(false, true) {
			return
		}
	}

	attrs := NewAttributesBuilder()
	for _, e := range i.extractors {
		i.onEnd(e, attrs, ctx, req, res, err)
	}
	sp.SetAttributes(attrs.Build()...)

	if code, desc := i.statusOf(req, res, err); code != codes.Unset {
		sp.SetStatus(code, desc)
	}
	if err != nil {
		sp.RecordError(err)
	}

	end := i.tracer.Now()
	if !sp.End(end) {
		return
	}
	if len(i.listeners) > 0 {
		merged := sp.Attributes()
		for _, l := range i.listeners {
			l.OnEnd(ctx, merged, end)
		}
	}
}

func (i *Instrumenter[REQ, RES]) onStart(e AttributesExtractor[REQ, RES], attrs *AttributesBuilder, parent context.Context, req REQ) {
	scratch := NewAttributesBuilder()
	defer func() {
		if r := recover(); r != nil {
			debug("%s: attributes extractor failed on start: %v", i.name, r)
			return
		}
		attrs.merge(scratch)
	}()
	e.OnStart(scratch, parent, req)
}

func (i *Instrumenter[REQ, RES]) onEnd(e AttributesExtractor[REQ, RES], attrs *AttributesBuilder, ctx context.Context, req REQ, res RES, err error) {
	scratch := NewAttributesBuilder()
	defer func() {
		if r := recover(); r != nil {
			debug("%s: attributes extractor failed on end: %v", i.name, r)
			return
		}
		attrs.merge(scratch)
	}()
	e.OnEnd(scratch, ctx, req, res, err)
}

func (i *Instrumenter[REQ, RES]) nameOf(req REQ) (name string) {
	defer func() {
		if r := recover(); r != nil {
			debug("%s: span name extractor failed: %v", i.name, r)
			name = UnknownSpanName
		}
	}()
	if name = i.spanName(req); name == "" {
		name = UnknownSpanName
	}
	return name
}

func (i *Instrumenter[REQ, RES]) kindOf(req REQ) (kind trace.SpanKind) {
	defer func() {
		if r := recover(); r != nil {
			debug("%s: span kind extractor failed: %v", i.name, r)
			kind = trace.SpanKindInternal
		}
	}()
	if kind = i.spanKind(req); kind == trace.SpanKindUnspecified {
		kind = trace.SpanKindInternal
	}
	return kind
}

func (i *Instrumenter[REQ, RES]) statusOf(req REQ, res RES, err error) (code codes.Code, desc string) {
	defer func() {
		if r := recover(); r != nil {
			debug("%s: span status extractor failed: %v", i.name, r)
			code, desc = DefaultSpanStatus[REQ, RES](req, res, err)
		}
	}()
	return i.status(req, res, err)
}
