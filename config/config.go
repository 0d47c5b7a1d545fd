// Package config loads tracer and instrumentation settings from YAML and the
// environment.
//
// Example:
//
//	serviceName: gateway
//	sampleRate: 0.25
//	propagators: [tracecontext, b3]
//	zipkin:
//	  url: http://zipkin:9411/api/v2/spans
//	instrumentation:
//	  http-server:
//	    capturedRequestHeaders: [X-Request-Id]
//	  messaging:
//	    enabled: false
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	"github.com/openzipkin/zipkin-go"
	"github.com/tetratelabs/multierror"
)

// Propagator names.
const (
	PropagatorTraceContext = "tracecontext"
	PropagatorB3           = "b3"
	PropagatorB3Single     = "b3single"
	PropagatorTextMap      = "textmap"
)

// Instrumentation names used by the adapters in this module.
const (
	HTTPClient = "http-client"
	HTTPServer = "http-server"
	Messaging  = "messaging"
)

// Config is the root configuration.
type Config struct {
	ServiceName string `yaml:"serviceName"`

	// SampleRate is the fraction of new traces that are sampled, 0 or
	// between 0.0001 and 1. Defaults to 1.
	SampleRate *float64 `yaml:"sampleRate"`

	// SampleSalt is mixed into trace ids before sampling.
	SampleSalt int64 `yaml:"sampleSalt"`

	// Propagators lists the wire formats used for inject and extract, in
	// order. Defaults to textmap and tracecontext.
	Propagators []string `yaml:"propagators"`

	// MultiEvent reports Start-Span and log events as they happen.
	MultiEvent bool `yaml:"multiEvent"`

	Zipkin Zipkin `yaml:"zipkin"`

	Instrumentation map[string]Instrumentation `yaml:"instrumentation"`
}

// Zipkin configures span export to a Zipkin collector. Export is off while
// URL is empty.
type Zipkin struct {
	URL string `yaml:"url"`

	// HostPort is the local endpoint address reported with each span.
	HostPort string `yaml:"hostPort"`
}

// Instrumentation overrides instrumenter.DefaultConfig for one adapter.
type Instrumentation struct {
	Enabled                 *bool    `yaml:"enabled"`
	SuppressNestedSpans     *bool    `yaml:"suppressNestedSpans"`
	CapturedRequestHeaders  []string `yaml:"capturedRequestHeaders"`
	CapturedResponseHeaders []string `yaml:"capturedResponseHeaders"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.SampleRate == nil {
		rate := 1.0
		c.SampleRate = &rate
	}
	if len(c.Propagators) == 0 {
		c.Propagators = []string{PropagatorTextMap, PropagatorTraceContext}
	}
	if c.Instrumentation == nil {
		c.Instrumentation = map[string]Instrumentation{}
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var mErr error

	if c.SampleRate != nil {
		if _, err := zipkin.NewBoundarySampler(*c.SampleRate, c.SampleSalt); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("sampleRate: %w", err))
		}
	}
	for _, name := range c.Propagators {
		if _, err := propagator(name); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	if c.Zipkin.URL != "" {
		if u, err := url.Parse(c.Zipkin.URL); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("zipkin.url: %w", err))
		} else if u.Scheme == "" || u.Host == "" {
			mErr = multierror.Append(mErr, fmt.Errorf("zipkin.url: %q is not absolute", c.Zipkin.URL))
		}
		if c.ServiceName == "" {
			mErr = multierror.Append(mErr, fmt.Errorf("serviceName: required with zipkin export"))
		}
	}
	if c.Zipkin.HostPort != "" {
		if _, _, err := net.SplitHostPort(c.Zipkin.HostPort); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("zipkin.hostPort: %w", err))
		}
	}

	return mErr
}

// Instrumenter returns the instrumenter.Config for the named adapter.
func (c *Config) Instrumenter(name string) instrumenter.Config {
	cfg := instrumenter.DefaultConfig()
	i, ok := c.Instrumentation[name]
	if !ok {
		return cfg
	}
	if i.Enabled != nil {
		cfg.Enabled = *i.Enabled
	}
	if i.SuppressNestedSpans != nil {
		cfg.SuppressNestedSpans = *i.SuppressNestedSpans
	}
	cfg.CapturedRequestHeaders = i.CapturedRequestHeaders
	cfg.CapturedResponseHeaders = i.CapturedResponseHeaders
	return cfg
}

// Propagator combines the configured propagators.
func (c *Config) Propagator() (core.Propagator, error) {
	ps := make([]core.Propagator, 0, len(c.Propagators))
	for _, name := range c.Propagators {
		p, err := propagator(name)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return core.NewCompositePropagator(ps...), nil
}

func propagator(name string) (core.Propagator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PropagatorTraceContext:
		return core.TraceContext(), nil
	case PropagatorB3:
		return core.B3(), nil
	case PropagatorB3Single:
		return core.B3Single(), nil
	case PropagatorTextMap:
		return core.TextMap(), nil
	}
	return nil, fmt.Errorf("propagators: unknown propagator %q", name)
}
