package core

import (
	"context"

	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// traceContextPropagator speaks the W3C traceparent and baggage headers by
// delegating the wire format to the OpenTelemetry propagators.
type traceContextPropagator struct {
	tc  propagation.TraceContext
	bag propagation.Baggage
}

// TraceContext returns a propagator for the W3C Trace Context
// (traceparent, tracestate) and W3C Baggage headers.
func TraceContext() Propagator {
	return traceContextPropagator{}
}

func (p traceContextPropagator) Fields() []string {
	return append(p.tc.Fields(), p.bag.Fields()...)
}

func (p traceContextPropagator) Inject(ctx context.Context, carrier Carrier) {
	sc := SpanContextFromContext(ctx)
	if sc == nil || !sc.IsValid() {
		return
	}
	octx := trace.ContextWithSpanContext(context.Background(), toSpanContext(sc).otel())
	p.tc.Inject(octx, carrier)

	var members []baggage.Member
	sc.ForeachBaggageItem(func(k, v string) bool {
		m, err := baggage.NewMemberRaw(k, v)
		if err != nil {
			debug("w3c baggage member %q: %v", k, err)
			return true
		}
		members = append(members, m)
		return true
	})
	if len(members) == 0 {
		return
	}
	bag, err := baggage.New(members...)
	if err != nil {
		debug("w3c baggage: %v", err)
		return
	}
	p.bag.Inject(baggage.ContextWithBaggage(octx, bag), carrier)
}

func (p traceContextPropagator) Extract(ctx context.Context, carrier Carrier) context.Context {
	octx := p.tc.Extract(context.Background(), carrier)
	osc := trace.SpanContextFromContext(octx)
	if !osc.IsValid() {
		return ctx
	}

	var bag map[string]string
	for _, m := range baggage.FromContext(p.bag.Extract(octx, carrier)).Members() {
		if bag == nil {
			bag = make(map[string]string)
		}
		bag[m.Key()] = m.Value()
	}
	return ContextWithRemoteSpanContext(ctx, NewRemoteSpanContext(osc.TraceID(), osc.SpanID(), osc.IsSampled(), bag))
}
