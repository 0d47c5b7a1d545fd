// Package metrics records instrumented operations as Prometheus metrics.
//
// Metrics:
//   - <ns>_operations_total: operation count by operation, kind, status
//   - <ns>_operation_duration_seconds: operation duration histogram
//
// The operation label comes from Options.OperationLabel.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/ext"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Options configures the metric names.
type Options struct {
	Namespace string
	Subsystem string

	// Buckets for the duration histogram. Defaults to prometheus.DefBuckets.
	Buckets []float64

	// OperationLabel derives the operation label from the merged span
	// attributes. It must return a bounded set of values. Defaults to
	// DefaultOperationLabel.
	OperationLabel func(attrs []attribute.KeyValue) string
}

// Listener is an instrumenter.OperationListener.
type Listener struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	label      func([]attribute.KeyValue) string
}

// DefaultOperationLabel labels by http.route, else the messaging destination,
// else the component, prefixed with the HTTP method when there is one, e.g.
// "GET /users/{id}" or "GET ctrace.TracedTransport".
func DefaultOperationLabel(attrs []attribute.KeyValue) string {
	var method, route, dest, component string
	for _, kv := range attrs {
		switch kv.Key {
		case ext.HTTPMethodKey:
			method = kv.Value.AsString()
		case ext.HTTPRouteKey:
			route = kv.Value.AsString()
		case ext.MessagingDestinationKey:
			dest = kv.Value.AsString()
		case ext.ComponentKey:
			component = kv.Value.AsString()
		}
	}

	label := component
	switch {
	case route != "":
		label = route
	case dest != "":
		label = dest
	case label == "":
		label = "unknown"
	}
	if method != "" {
		return method + " " + label
	}
	return label
}

type startKey struct{}

// NewListener creates the metrics and registers them with registry. If
// registry is nil, the default Prometheus registerer is used. Metrics that
// are already registered are shared.
func NewListener(registry prometheus.Registerer, opts Options) (*Listener, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if opts.Namespace == "" {
		opts.Namespace = "ctrace"
	}
	if len(opts.Buckets) == 0 {
		opts.Buckets = prometheus.DefBuckets
	}
	if opts.OperationLabel == nil {
		opts.OperationLabel = DefaultOperationLabel
	}

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "operations_total",
			Help:      "Total number of instrumented operations",
		},
		[]string{"operation", "kind", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Duration of instrumented operations in seconds",
			Buckets:   opts.Buckets,
		},
		[]string{"operation", "kind"},
	)

	var err error
	if operations, err = register(registry, operations); err != nil {
		return nil, err
	}
	if duration, err = register(registry, duration); err != nil {
		return nil, err
	}
	return &Listener{operations: operations, duration: duration, label: opts.OperationLabel}, nil
}

func register[C prometheus.Collector](registry prometheus.Registerer, c C) (C, error) {
	if err := registry.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// OnStart remembers the start time.
func (l *Listener) OnStart(ctx context.Context, _ []attribute.KeyValue, start time.Time) context.Context {
	return context.WithValue(ctx, startKey{}, start)
}

// OnEnd records the operation of the span in ctx.
func (l *Listener) OnEnd(ctx context.Context, attrs []attribute.KeyValue, end time.Time) {
	sp := core.SpanFromContext(ctx)
	if sp == nil {
		return
	}
	name, kind := l.label(attrs), sp.Kind().String()

	status := "ok"
	if code, _ := sp.Status(); code == codes.Error {
		status = "error"
	}
	l.operations.WithLabelValues(name, kind, status).Inc()

	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		l.duration.WithLabelValues(name, kind).Observe(end.Sub(start).Seconds())
	}
}
