package core

import (
	"context"
	"net/url"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"go.opentelemetry.io/otel/trace"
)

type textMapPropagator struct {
	traceIDKey    string
	spanIDKey     string
	sampledKey    string
	baggagePrefix string
}

// TextMap returns the native ctrace propagator which writes ct-trace-id,
// ct-span-id, ct-sampled and one ct-bag-<key> entry per baggage item.
func TextMap() Propagator {
	return &textMapPropagator{
		traceIDKey:    "ct-trace-id",
		spanIDKey:     "ct-span-id",
		sampledKey:    "ct-sampled",
		baggagePrefix: "ct-bag-",
	}
}

func (p *textMapPropagator) Fields() []string {
	return []string{p.traceIDKey, p.spanIDKey, p.sampledKey}
}

func (p *textMapPropagator) Inject(ctx context.Context, carrier Carrier) {
	sc := SpanContextFromContext(ctx)
	if sc == nil || !sc.IsValid() {
		return
	}
	carrier.Set(p.traceIDKey, sc.TraceID().String())
	carrier.Set(p.spanIDKey, sc.SpanID().String())
	if sc.IsSampled() {
		carrier.Set(p.sampledKey, "1")
	} else {
		carrier.Set(p.sampledKey, "0")
	}

	sc.ForeachBaggageItem(func(k, v string) bool {
		carrier.Set(p.baggagePrefix+url.QueryEscape(k), url.QueryEscape(v))
		return true
	})
}

func (p *textMapPropagator) Extract(ctx context.Context, carrier Carrier) context.Context {
	sc, err := p.extract(carrier)
	if err != nil {
		if err != opentracing.ErrSpanContextNotFound {
			debug("ctrace extract: %v", err)
		}
		return ctx
	}
	return ContextWithRemoteSpanContext(ctx, sc)
}

func (p *textMapPropagator) extract(carrier Carrier) (SpanContext, error) {
	rawTraceID := carrier.Get(p.traceIDKey)
	rawSpanID := carrier.Get(p.spanIDKey)
	if rawTraceID == "" && rawSpanID == "" {
		return nil, opentracing.ErrSpanContextNotFound
	}
	traceID, err := trace.TraceIDFromHex(rawTraceID)
	if err != nil {
		return nil, opentracing.ErrSpanContextCorrupted
	}
	spanID, err := trace.SpanIDFromHex(rawSpanID)
	if err != nil {
		return nil, opentracing.ErrSpanContextCorrupted
	}

	var baggage map[string]string
	for _, k := range carrier.Keys() {
		lk := decode(strings.ToLower(k))
		if !strings.HasPrefix(lk, p.baggagePrefix) {
			continue
		}
		if baggage == nil {
			baggage = make(map[string]string)
		}
		baggage[strings.TrimPrefix(lk, p.baggagePrefix)] = decode(carrier.Get(k))
	}

	sampled := carrier.Get(p.sampledKey) != "0"
	return NewRemoteSpanContext(traceID, spanID, sampled, baggage), nil
}

// decode ignores decoding errors, cannot do anything about them.
func decode(s string) string {
	if v, err := url.QueryUnescape(s); err == nil {
		return v
	}
	return s
}
