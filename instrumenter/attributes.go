package instrumenter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// AttributesBuilder accumulates span attributes. Writing a key twice keeps
// the last value; keys keep the order of their first write.
type AttributesBuilder struct {
	values map[attribute.Key]attribute.Value
	order  []attribute.Key
}

// NewAttributesBuilder returns an empty builder.
func NewAttributesBuilder() *AttributesBuilder {
	return &AttributesBuilder{values: map[attribute.Key]attribute.Value{}}
}

// Put records kv. Invalid pairs (empty key or unset value) are dropped.
func (b *AttributesBuilder) Put(kv ...attribute.KeyValue) *AttributesBuilder {
	for _, a := range kv {
		if !a.Valid() {
			continue
		}
		if _, ok := b.values[a.Key]; !ok {
			b.order = append(b.order, a.Key)
		}
		b.values[a.Key] = a.Value
	}
	return b
}

// PutString records a string attribute unless value is empty.
func (b *AttributesBuilder) PutString(key, value string) *AttributesBuilder {
	if value == "" {
		return b
	}
	return b.Put(attribute.String(key, value))
}

// Get returns the value recorded for key.
func (b *AttributesBuilder) Get(key attribute.Key) (attribute.Value, bool) {
	v, ok := b.values[key]
	return v, ok
}

// Len returns the number of distinct keys.
func (b *AttributesBuilder) Len() int {
	return len(b.order)
}

// Build returns the recorded attributes.
func (b *AttributesBuilder) Build() []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, attribute.KeyValue{Key: k, Value: b.values[k]})
	}
	return out
}

func (b *AttributesBuilder) merge(o *AttributesBuilder) {
	b.Put(o.Build()...)
}

// AttributesExtractor derives span attributes from a request at start and
// from the request, response and error at end.
type AttributesExtractor[REQ, RES any] interface {
	OnStart(attrs *AttributesBuilder, parent context.Context, req REQ)
	OnEnd(attrs *AttributesBuilder, ctx context.Context, req REQ, res RES, err error)
}

type funcExtractor[REQ, RES any] struct {
	onStart func(*AttributesBuilder, context.Context, REQ)
	onEnd   func(*AttributesBuilder, context.Context, REQ, RES, error)
}

// NewAttributesExtractor builds an extractor from functions. Either may be nil.
func NewAttributesExtractor[REQ, RES any](
	onStart func(attrs *AttributesBuilder, parent context.Context, req REQ),
	onEnd func(attrs *AttributesBuilder, ctx context.Context, req REQ, res RES, err error),
) AttributesExtractor[REQ, RES] {
	return funcExtractor[REQ, RES]{onStart: onStart, onEnd: onEnd}
}

func (e funcExtractor[REQ, RES]) OnStart(attrs *AttributesBuilder, parent context.Context, req REQ) {
	if e.onStart != nil {
		e.onStart(attrs, parent, req)
	}
}

func (e funcExtractor[REQ, RES]) OnEnd(attrs *AttributesBuilder, ctx context.Context, req REQ, res RES, err error) {
	if e.onEnd != nil {
		e.onEnd(attrs, ctx, req, res, err)
	}
}

// ConstantAttributes returns an extractor that adds kv at start.
func ConstantAttributes[REQ, RES any](kv ...attribute.KeyValue) AttributesExtractor[REQ, RES] {
	return NewAttributesExtractor[REQ, RES](func(attrs *AttributesBuilder, _ context.Context, _ REQ) {
		attrs.Put(kv...)
	}, nil)
}
