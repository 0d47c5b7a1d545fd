package core

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartConfig holds the settings applied when a span starts.
type StartConfig struct {
	Kind       trace.SpanKind
	StartTime  time.Time
	Attributes []attribute.KeyValue

	// Parent overrides the parent found in the context.
	Parent SpanContext

	// NewRoot ignores any parent and starts a new trace.
	NewRoot bool
}

// StartOption configures a span at start.
type StartOption func(*StartConfig)

// WithSpanKind sets the span kind. Unset kinds default to internal.
func WithSpanKind(kind trace.SpanKind) StartOption {
	return func(c *StartConfig) {
		c.Kind = kind
	}
}

// WithStartTime sets an explicit start timestamp.
func WithStartTime(t time.Time) StartOption {
	return func(c *StartConfig) {
		c.StartTime = t
	}
}

// WithAttributes adds attributes present when the span starts.
func WithAttributes(kv ...attribute.KeyValue) StartOption {
	return func(c *StartConfig) {
		c.Attributes = append(c.Attributes, kv...)
	}
}

// WithParent uses sc as the parent regardless of the context.
func WithParent(sc SpanContext) StartOption {
	return func(c *StartConfig) {
		c.Parent = sc
	}
}

// WithNewRoot starts a new trace.
func WithNewRoot() StartOption {
	return func(c *StartConfig) {
		c.NewRoot = true
	}
}
