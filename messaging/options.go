package messaging

import (
	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	"github.com/opentracing/opentracing-go"
)

type options struct {
	tracer     core.Tracer
	system     string
	config     instrumenter.Config
	propagator core.Propagator
	listeners  []instrumenter.OperationListener
}

// Option controls the behavior of publishers and consumers.
type Option func(*options)

// WithTracer sets the tracer. Defaults to the global tracer when it is a
// core.Tracer, otherwise to a new one.
func WithTracer(t core.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithSystem names the broker, e.g. "rabbitmq".
func WithSystem(system string) Option {
	return func(o *options) {
		o.system = system
	}
}

// WithConfig replaces instrumenter.DefaultConfig.
func WithConfig(c instrumenter.Config) Option {
	return func(o *options) {
		o.config = c
	}
}

// WithPropagator overrides the tracer's propagator.
func WithPropagator(p core.Propagator) Option {
	return func(o *options) {
		o.propagator = p
	}
}

// WithOperationListener adds a listener, e.g. metrics.
func WithOperationListener(l instrumenter.OperationListener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

func newOptions(opts []Option) options {
	o := options{system: "generic", config: instrumenter.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		if t, ok := opentracing.GlobalTracer().(core.Tracer); ok {
			o.tracer = t
		} else {
			o.tracer = core.New()
		}
	}
	return o
}
