package core

import (
	"context"
	"encoding/binary"

	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/propagation/b3"
	"go.opentelemetry.io/otel/trace"
)

type b3Propagator struct {
	single bool
}

// B3 returns a propagator for the Zipkin B3 multi header format. Extraction
// also understands the single "b3" header.
func B3() Propagator {
	return b3Propagator{}
}

// B3Single returns a propagator that injects the single "b3" header.
func B3Single() Propagator {
	return b3Propagator{single: true}
}

func (p b3Propagator) Fields() []string {
	if p.single {
		return []string{b3.Context}
	}
	return []string{b3.TraceID, b3.SpanID, b3.Sampled}
}

func (p b3Propagator) Inject(ctx context.Context, carrier Carrier) {
	sc := SpanContextFromContext(ctx)
	if sc == nil || !sc.IsValid() {
		return
	}
	zsc := toZipkin(sc)
	if p.single {
		carrier.Set(b3.Context, b3.BuildSingleHeader(zsc))
		return
	}
	carrier.Set(b3.TraceID, zsc.TraceID.String())
	carrier.Set(b3.SpanID, zsc.ID.String())
	if sc.IsSampled() {
		carrier.Set(b3.Sampled, "1")
	} else {
		carrier.Set(b3.Sampled, "0")
	}
}

func (p b3Propagator) Extract(ctx context.Context, carrier Carrier) context.Context {
	var (
		zsc *model.SpanContext
		err error
	)
	if h := carrier.Get(b3.Context); h != "" {
		zsc, err = b3.ParseSingleHeader(h)
	} else {
		zsc, err = b3.ParseHeaders(
			carrier.Get(b3.TraceID),
			carrier.Get(b3.SpanID),
			carrier.Get(b3.ParentSpanID),
			carrier.Get(b3.Sampled),
			carrier.Get(b3.Flags),
		)
	}
	if err != nil {
		debug("b3 extract: %v", err)
		return ctx
	}
	if zsc == nil || zsc.TraceID.Empty() || zsc.ID == 0 {
		return ctx
	}

	var traceID trace.TraceID
	binary.BigEndian.PutUint64(traceID[:8], zsc.TraceID.High)
	binary.BigEndian.PutUint64(traceID[8:], zsc.TraceID.Low)
	var spanID trace.SpanID
	binary.BigEndian.PutUint64(spanID[:], uint64(zsc.ID))

	sampled := zsc.Debug || zsc.Sampled == nil || *zsc.Sampled
	return ContextWithRemoteSpanContext(ctx, NewRemoteSpanContext(traceID, spanID, sampled, nil))
}

func toZipkin(sc SpanContext) model.SpanContext {
	tid := sc.TraceID()
	sid := sc.SpanID()
	sampled := sc.IsSampled()
	return model.SpanContext{
		TraceID: model.TraceID{
			High: binary.BigEndian.Uint64(tid[:8]),
			Low:  binary.BigEndian.Uint64(tid[8:]),
		},
		ID:      model.ID(binary.BigEndian.Uint64(sid[:])),
		Sampled: &sampled,
	}
}
