package http

import (
	"net/http"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	opentracing "github.com/opentracing/opentracing-go"
)

type httpOptions struct {
	opNameFunc func(r *http.Request) string
	tracer     core.Tracer
	component  string
	config     instrumenter.Config
	propagator core.Propagator
	listeners  []instrumenter.OperationListener
}

// Option controls the behavior of the ctrace http transport and handlers.
type Option func(*httpOptions)

// OperationNameFunc returns a Option that uses given function f to
// generate operation name for each span.
func OperationNameFunc(f func(r *http.Request) string) Option {
	return func(options *httpOptions) {
		options.opNameFunc = f
	}
}

// OperationName returns a Option that uses given opName as operation name
// for each span.
func OperationName(opName string) Option {
	return func(options *httpOptions) {
		options.opNameFunc = func(r *http.Request) string {
			return opName
		}
	}
}

// WithTracer sets the tracer. Defaults to the global tracer when it is a
// core.Tracer.
func WithTracer(t core.Tracer) Option {
	return func(options *httpOptions) {
		options.tracer = t
	}
}

// WithComponent overrides the component recorded on each span.
func WithComponent(component string) Option {
	return func(options *httpOptions) {
		options.component = component
	}
}

// WithConfig replaces instrumenter.DefaultConfig, e.g. to capture headers.
func WithConfig(c instrumenter.Config) Option {
	return func(options *httpOptions) {
		options.config = c
	}
}

// WithPropagator overrides the tracer's propagator.
func WithPropagator(p core.Propagator) Option {
	return func(options *httpOptions) {
		options.propagator = p
	}
}

// WithOperationListener adds a listener, e.g. metrics.
func WithOperationListener(l instrumenter.OperationListener) Option {
	return func(options *httpOptions) {
		options.listeners = append(options.listeners, l)
	}
}

func newOptions(component string, opNameFunc func(r *http.Request) string, options []Option) httpOptions {
	opts := httpOptions{
		opNameFunc: opNameFunc,
		component:  component,
		config:     instrumenter.DefaultConfig(),
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.tracer == nil {
		if t, ok := opentracing.GlobalTracer().(core.Tracer); ok {
			opts.tracer = t
		} else {
			opts.tracer = core.New()
		}
	}
	return opts
}

func newBuilder[RES any](opts httpOptions, e ...instrumenter.AttributesExtractor[*http.Request, RES]) *instrumenter.Builder[*http.Request, RES] {
	b := instrumenter.NewBuilder[*http.Request, RES](opts.tracer, opts.component, opts.opNameFunc).
		AddAttributesExtractors(e...).
		AddOperationListeners(opts.listeners...).
		SetConfig(opts.config)
	if opts.propagator != nil {
		b.SetPropagator(opts.propagator)
	}
	return b
}
