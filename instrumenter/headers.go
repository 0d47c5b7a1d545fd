package instrumenter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute key prefixes for captured headers. The lower cased header name
// is appended.
const (
	RequestHeaderPrefix  = "http.request.header."
	ResponseHeaderPrefix = "http.response.header."
)

// HeaderGetterFunc returns every value of the named header.
type HeaderGetterFunc[C any] func(carrier C, name string) []string

// NewHeaderCaptureExtractor records the headers listed in cfg as string
// slice attributes: request headers at start, response headers at end.
// Headers that are absent are skipped. Either getter may be nil.
func NewHeaderCaptureExtractor[REQ, RES any](cfg Config, reqHeaders HeaderGetterFunc[REQ], resHeaders HeaderGetterFunc[RES]) AttributesExtractor[REQ, RES] {
	reqNames := lowerAll(cfg.CapturedRequestHeaders)
	resNames := lowerAll(cfg.CapturedResponseHeaders)

	var onStart func(*AttributesBuilder, context.Context, REQ)
	if reqHeaders != nil && len(reqNames) > 0 {
		onStart = func(attrs *AttributesBuilder, _ context.Context, req REQ) {
			capture(attrs, RequestHeaderPrefix, reqNames, func(n string) []string { return reqHeaders(req, n) })
		}
	}

	var onEnd func(*AttributesBuilder, context.Context, REQ, RES, error)
	if resHeaders != nil && len(resNames) > 0 {
		onEnd = func(attrs *AttributesBuilder, _ context.Context, _ REQ, res RES, _ error) {
			capture(attrs, ResponseHeaderPrefix, resNames, func(n string) []string { return resHeaders(res, n) })
		}
	}
	return NewAttributesExtractor[REQ, RES](onStart, onEnd)
}

func capture(attrs *AttributesBuilder, prefix string, names []string, get func(string) []string) {
	for _, n := range names {
		if vals := get(n); len(vals) > 0 {
			attrs.Put(attribute.StringSlice(prefix+n, vals))
		}
	}
}
