package core

import (
	"go.opentelemetry.io/otel/trace"
)

// SpanContext represents Span state that must propagate to descendant Spans and across process
// boundaries (e.g., a <trace_id, span_id, sampled> tuple).
type SpanContext interface {
	ForeachBaggageItem(handler func(k, v string) bool)
	TraceID() trace.TraceID
	SpanID() trace.SpanID
	TraceFlags() trace.TraceFlags
	BaggageItem(key string) string
	IsSampled() bool
	// IsRemote reports whether the context was extracted from a carrier.
	IsRemote() bool
	IsValid() bool
}

// spanContext holds the basic Span metadata.
type spanContext struct {
	// A probabilistically unique identifier for a [multi-span] trace.
	traceID trace.TraceID

	// A probabilistically unique identifier for a span.
	spanID trace.SpanID

	flags  trace.TraceFlags
	remote bool

	// The span's associated baggage.
	baggage map[string]string // initialized on first use
}

// NewSpanContext creates a new local, sampled SpanContext.
func NewSpanContext(
	traceID trace.TraceID,
	spanID trace.SpanID,
	baggage map[string]string,
) SpanContext {
	return spanContext{
		traceID: traceID,
		spanID:  spanID,
		flags:   trace.FlagsSampled,
		baggage: baggage,
	}
}

// NewRemoteSpanContext creates a SpanContext describing a span that lives in
// another process.
func NewRemoteSpanContext(
	traceID trace.TraceID,
	spanID trace.SpanID,
	sampled bool,
	baggage map[string]string,
) SpanContext {
	sc := spanContext{
		traceID: traceID,
		spanID:  spanID,
		remote:  true,
		baggage: baggage,
	}
	if sampled {
		sc.flags = trace.FlagsSampled
	}
	return sc
}

func (c spanContext) TraceID() trace.TraceID {
	return c.traceID
}

func (c spanContext) SpanID() trace.SpanID {
	return c.spanID
}

func (c spanContext) TraceFlags() trace.TraceFlags {
	return c.flags
}

func (c spanContext) IsSampled() bool {
	return c.flags.IsSampled()
}

func (c spanContext) IsRemote() bool {
	return c.remote
}

func (c spanContext) IsValid() bool {
	return c.traceID.IsValid() && c.spanID.IsValid()
}

func (c spanContext) BaggageItem(key string) string {
	if c.baggage == nil {
		return ""
	}
	return c.baggage[key]
}

// ForeachBaggageItem belongs to the opentracing.SpanContext interface
func (c spanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggage {
		if !handler(k, v) {
			break
		}
	}
}

// WithBaggageItem returns an entirely new spanContext with the
// given key:value baggage pair set.
func (c spanContext) WithBaggageItem(key, val string) spanContext {
	var newBaggage = make(map[string]string, len(c.baggage)+1)
	for k, v := range c.baggage {
		newBaggage[k] = v
	}
	newBaggage[key] = val

	// Use positional parameters so the compiler will help catch new fields.
	return spanContext{c.traceID, c.spanID, c.flags, c.remote, newBaggage}
}

// otel converts the context into its OpenTelemetry representation, used by
// the W3C propagator.
func (c spanContext) otel() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    c.traceID,
		SpanID:     c.spanID,
		TraceFlags: c.flags,
		Remote:     c.remote,
	})
}

func toSpanContext(sc SpanContext) spanContext {
	if raw, ok := sc.(spanContext); ok {
		return raw
	}
	out := spanContext{
		traceID: sc.TraceID(),
		spanID:  sc.SpanID(),
		flags:   sc.TraceFlags(),
		remote:  sc.IsRemote(),
	}
	sc.ForeachBaggageItem(func(k, v string) bool {
		if out.baggage == nil {
			out.baggage = make(map[string]string)
		}
		out.baggage[k] = v
		return true
	})
	return out
}
