package core

import (
	"context"
	"net/http"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
)

// Carrier is the storage medium a Propagator reads from and writes to.
// Its method set matches the OpenTelemetry TextMapCarrier.
type Carrier interface {
	Get(key string) string
	Set(key, value string)
	Keys() []string
}

// Propagator injects the span context of a context.Context into a carrier
// and extracts a remote span context back out of one. Extract never fails:
// malformed or absent input returns ctx unchanged.
type Propagator interface {
	Inject(ctx context.Context, carrier Carrier)
	Extract(ctx context.Context, carrier Carrier) context.Context
	// Fields lists the carrier keys the propagator writes.
	Fields() []string
}

// Setter writes a key into a library specific carrier, e.g. a request's
// header collection.
type Setter[C any] interface {
	Set(carrier C, key, value string)
}

// Getter reads keys from a library specific carrier.
type Getter[C any] interface {
	Keys(carrier C) []string
	Get(carrier C, key string) string
}

// SetterFunc adapts a function to a Setter.
type SetterFunc[C any] func(carrier C, key, value string)

// Set calls f.
func (f SetterFunc[C]) Set(carrier C, key, value string) {
	f(carrier, key, value)
}

// GetterFunc adapts a lookup function to a Getter. It cannot enumerate
// keys, so prefix based fields (ctrace baggage) are not extracted through it.
type GetterFunc[C any] func(carrier C, key string) string

// Get calls f.
func (f GetterFunc[C]) Get(carrier C, key string) string {
	return f(carrier, key)
}

// Keys returns nil.
func (f GetterFunc[C]) Keys(C) []string {
	return nil
}

type setterCarrier[C any] struct {
	carrier C
	setter  Setter[C]
}

func (c setterCarrier[C]) Get(string) string     { return "" }
func (c setterCarrier[C]) Keys() []string        { return nil }
func (c setterCarrier[C]) Set(key, value string) { c.setter.Set(c.carrier, key, value) }

type getterCarrier[C any] struct {
	carrier C
	getter  Getter[C]
}

func (c getterCarrier[C]) Get(key string) string { return c.getter.Get(c.carrier, key) }
func (c getterCarrier[C]) Keys() []string        { return c.getter.Keys(c.carrier) }
func (c getterCarrier[C]) Set(string, string)    {}

type writerCarrier struct {
	w opentracing.TextMapWriter
}

func (c writerCarrier) Get(string) string     { return "" }
func (c writerCarrier) Keys() []string        { return nil }
func (c writerCarrier) Set(key, value string) { c.w.Set(key, value) }

// Inject writes the span context of ctx into carrier through setter. A
// failing setter is logged and otherwise ignored.
func Inject[C any](ctx context.Context, p Propagator, carrier C, setter Setter[C]) {
	if p == nil || setter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			debug("inject failed: %v", r)
		}
	}()
	p.Inject(ctx, setterCarrier[C]{carrier: carrier, setter: setter})
}

// Extract returns ctx extended with the remote span context found in
// carrier. When nothing valid is found, or the getter fails, ctx is
// returned unchanged.
func Extract[C any](ctx context.Context, p Propagator, carrier C, getter Getter[C]) (out context.Context) {
	out = ctx
	if p == nil || getter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			debug("extract failed: %v", r)
			out = ctx
		}
	}()
	return p.Extract(ctx, getterCarrier[C]{carrier: carrier, getter: getter})
}

// TextMapCarrier allows the use of regular map[string]string
// as a Carrier.
type TextMapCarrier map[string]string

// Get implements Carrier.
func (c TextMapCarrier) Get(key string) string {
	return c[key]
}

// Set implements Carrier.
func (c TextMapCarrier) Set(key, val string) {
	c[key] = val
}

// Keys implements Carrier.
func (c TextMapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// HTTPHeadersCarrier is a Carrier backed by http.Header.
type HTTPHeadersCarrier http.Header

// Get implements Carrier.
func (c HTTPHeadersCarrier) Get(key string) string {
	return http.Header(c).Get(key)
}

// Set implements Carrier.
func (c HTTPHeadersCarrier) Set(key, val string) {
	http.Header(c).Set(key, val)
}

// Keys implements Carrier. Keys are returned lower case.
func (c HTTPHeadersCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, strings.ToLower(k))
	}
	return keys
}

// HeaderSetter is a Setter for http.Header carriers.
var HeaderSetter Setter[http.Header] = SetterFunc[http.Header](func(h http.Header, key, value string) {
	h.Set(key, value)
})

// HeaderGetter is a Getter for http.Header carriers.
var HeaderGetter Getter[http.Header] = headerGetter{}

type headerGetter struct{}

func (headerGetter) Get(h http.Header, key string) string { return h.Get(key) }
func (headerGetter) Keys(h http.Header) []string          { return HTTPHeadersCarrier(h).Keys() }

type compositePropagator []Propagator

// NewCompositePropagator chains propagators. Inject runs all of them;
// Extract runs them in order so the last format found wins.
func NewCompositePropagator(p ...Propagator) Propagator {
	return compositePropagator(p)
}

func (c compositePropagator) Inject(ctx context.Context, carrier Carrier) {
	for _, p := range c {
		p.Inject(ctx, carrier)
	}
}

func (c compositePropagator) Extract(ctx context.Context, carrier Carrier) context.Context {
	for _, p := range c {
		ctx = p.Extract(ctx, carrier)
	}
	return ctx
}

func (c compositePropagator) Fields() []string {
	var fields []string
	seen := map[string]bool{}
	for _, p := range c {
		for _, f := range p.Fields() {
			if !seen[f] {
				seen[f] = true
				fields = append(fields, f)
			}
		}
	}
	return fields
}
