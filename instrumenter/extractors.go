package instrumenter

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UnknownSpanName is used when a name extractor yields nothing usable.
const UnknownSpanName = "unknown"

// SpanNameExtractor derives a span name from a request.
type SpanNameExtractor[REQ any] func(req REQ) string

// SpanKindExtractor derives a span kind from a request.
type SpanKindExtractor[REQ any] func(req REQ) trace.SpanKind

// SpanStatusExtractor derives the final span status. Returning codes.Unset
// leaves the status untouched.
type SpanStatusExtractor[REQ, RES any] func(req REQ, res RES, err error) (codes.Code, string)

// ConstantSpanName always returns name.
func ConstantSpanName[REQ any](name string) SpanNameExtractor[REQ] {
	return func(REQ) string { return name }
}

func alwaysKind[REQ any](kind trace.SpanKind) SpanKindExtractor[REQ] {
	return func(REQ) trace.SpanKind { return kind }
}

// AlwaysInternal returns trace.SpanKindInternal for every request.
func AlwaysInternal[REQ any]() SpanKindExtractor[REQ] { return alwaysKind[REQ](trace.SpanKindInternal) }

// AlwaysClient returns trace.SpanKindClient for every request.
func AlwaysClient[REQ any]() SpanKindExtractor[REQ] { return alwaysKind[REQ](trace.SpanKindClient) }

// AlwaysServer returns trace.SpanKindServer for every request.
func AlwaysServer[REQ any]() SpanKindExtractor[REQ] { return alwaysKind[REQ](trace.SpanKindServer) }

// AlwaysProducer returns trace.SpanKindProducer for every request.
func AlwaysProducer[REQ any]() SpanKindExtractor[REQ] { return alwaysKind[REQ](trace.SpanKindProducer) }

// AlwaysConsumer returns trace.SpanKindConsumer for every request.
func AlwaysConsumer[REQ any]() SpanKindExtractor[REQ] { return alwaysKind[REQ](trace.SpanKindConsumer) }

// DefaultSpanStatus marks the span as an error iff err is non-nil.
func DefaultSpanStatus[REQ, RES any](_ REQ, _ RES, err error) (codes.Code, string) {
	if err != nil {
		return codes.Error, err.Error()
	}
	return codes.Unset, ""
}
