package config

import (
	"github.com/Nordstrom/ctrace-pipeline/core"
	ctzipkin "github.com/Nordstrom/ctrace-pipeline/reporter/zipkin"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/reporter"
	zhttp "github.com/openzipkin/zipkin-go/reporter/http"
	"github.com/pkg/errors"
)

// TracerOptions converts c into core.TracerOptions. Span export is left to
// NewTracer.
func (c *Config) TracerOptions() (core.TracerOptions, error) {
	rate := 1.0
	if c.SampleRate != nil {
		rate = *c.SampleRate
	}
	sampler, err := zipkin.NewBoundarySampler(rate, c.SampleSalt)
	if err != nil {
		return core.TracerOptions{}, errors.Wrap(err, "sampler")
	}
	prop, err := c.Propagator()
	if err != nil {
		return core.TracerOptions{}, err
	}
	return core.TracerOptions{
		MultiEvent:  c.MultiEvent,
		ServiceName: c.ServiceName,
		Sampler:     sampler,
		Propagator:  prop,
	}, nil
}

// NewTracer builds a tracer from c. When Zipkin export is configured the
// finished spans are sent there; shutdown flushes and stops that reporter and
// is a no-op otherwise.
func (c *Config) NewTracer() (trc core.Tracer, shutdown func() error, err error) {
	opts, err := c.TracerOptions()
	if err != nil {
		return nil, nil, err
	}
	shutdown = func() error { return nil }

	if c.Zipkin.URL != "" {
		ep, err := zipkin.NewEndpoint(c.ServiceName, c.Zipkin.HostPort)
		if err != nil {
			return nil, nil, errors.Wrap(err, "zipkin endpoint")
		}
		var rep reporter.Reporter = zhttp.NewReporter(c.Zipkin.URL)
		opts.Reporter = ctzipkin.NewSpanReporter(rep, ep)
		shutdown = rep.Close
	}
	return core.NewWithOptions(opts), shutdown, nil
}
