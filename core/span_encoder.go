package core

import (
	opentracing "github.com/opentracing/opentracing-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanEncoder is a format-agnostic interface for encoding span events.
type SpanEncoder interface {
	Encode(opentracing.Span) []byte
}

// spanEncoder writes one JSON object per span event.
type spanEncoder struct{}

// NewSpanEncoder creates a fast, low-allocation JSON encoder.
func NewSpanEncoder() SpanEncoder {
	return spanEncoder{}
}

// Encode renders one span event. Spans not produced by this package encode
// to nil.
func (enc spanEncoder) Encode(osp opentracing.Span) []byte {
	sp, ok := osp.(*span)
	if !ok {
		return nil
	}
	sp.Lock()
	defer sp.Unlock()

	bytes := make([]byte, 0, 1024)

	if len(sp.prefix) == 0 {
		enc.encodePrefix(sp)
	}

	bytes = append(bytes, sp.prefix...)
	if !sp.finish.IsZero() {
		bytes = appendIntMember(bytes, "finish", sp.finish.UnixNano()/1e3)
	}
	if sp.duration >= 0 {
		bytes = appendIntMember(bytes, "duration", sp.duration.Nanoseconds()/1e3)
	}
	bytes = enc.encodeStatus(bytes, sp.statusCode, sp.statusDescription)
	bytes = enc.encodeTags(bytes, sp.sortedAttributes())
	bytes = enc.encodeBaggage(bytes, sp.context.baggage)
	bytes = enc.encodeLogs(bytes, sp.logs)
	bytes = append(bytes, '}', '\n')

	return bytes
}

func (enc spanEncoder) encodePrefix(sp *span) {
	b := make([]byte, 0, 512)
	b = append(b, '{')
	b = appendStringMember(b, "traceId", sp.context.traceID.String())
	b = appendStringMember(b, "spanId", sp.context.spanID.String())

	if sp.parentID.IsValid() {
		b = appendStringMember(b, "parentId", sp.parentID.String())
		if sp.parentRemote {
			b = appendMember(b, "parentRemote", attribute.BoolValue(true))
		}
	}

	b = appendStringMember(b, "operation", sp.operation)
	if sp.kind > trace.SpanKindInternal {
		b = appendStringMember(b, "kind", sp.kind.String())
	}
	sp.prefix = appendIntMember(b, "start", sp.start.UnixNano()/1e3)
}

func (enc spanEncoder) encodeStatus(bytes []byte, code codes.Code, desc string) []byte {
	if code == codes.Unset {
		return bytes
	}
	bytes = appendStringMember(bytes, "status", code.String())
	if desc != "" {
		bytes = appendStringMember(bytes, "statusDescription", desc)
	}
	return bytes
}

func (enc spanEncoder) encodeTags(bytes []byte, attrs []attribute.KeyValue) []byte {
	if len(attrs) == 0 {
		return bytes
	}
	bytes = appendKey(bytes, "tags")
	bytes = append(bytes, '{')

	for _, kv := range attrs {
		bytes = appendMember(bytes, string(kv.Key), kv.Value)
	}

	bytes = append(bytes, '}')
	return bytes
}

func (enc spanEncoder) encodeBaggage(
	bytes []byte,
	baggage map[string]string,
) []byte {
	if len(baggage) == 0 {
		return bytes
	}
	bytes = appendKey(bytes, "baggage")
	bytes = append(bytes, '{')

	for k, v := range baggage {
		bytes = appendStringMember(bytes, k, v)
	}

	bytes = append(bytes, '}')
	return bytes
}

func (enc spanEncoder) encodeLogs(bytes []byte, logs []opentracing.LogRecord) []byte {
	if len(logs) == 0 {
		return bytes
	}
	bytes = appendKey(bytes, "logs")
	bytes = append(bytes, '[')
	addComma := false
	for _, log := range logs {
		if log.Timestamp.IsZero() {
			continue
		}
		if addComma {
			bytes = append(bytes, ',')
		} else {
			addComma = true
		}
		bytes = append(bytes, '{')
		bytes = appendIntMember(bytes, "timestamp", log.Timestamp.UnixNano()/1e3)
		w := fieldWriter{bytes: bytes}
		for _, f := range log.Fields {
			f.Marshal(&w)
		}
		bytes = append(w.bytes, '}')
	}
	bytes = append(bytes, ']')
	return bytes
}
