package instrumenter

import (
	"github.com/Nordstrom/ctrace-pipeline/core"
)

// Builder assembles an Instrumenter. A Builder is not safe for concurrent
// use; the Instrumenter it builds is.
type Builder[REQ, RES any] struct {
	tracer     core.Tracer
	name       string
	spanName   SpanNameExtractor[REQ]
	extractors []AttributesExtractor[REQ, RES]
	status     SpanStatusExtractor[REQ, RES]
	listeners  []OperationListener
	config     Config
	propagator core.Propagator
}

// NewBuilder starts a builder for the instrumentation called name. The name
// is recorded on every span as its component.
func NewBuilder[REQ, RES any](tracer core.Tracer, name string, spanName SpanNameExtractor[REQ]) *Builder[REQ, RES] {
	return &Builder[REQ, RES]{
		tracer:   tracer,
		name:     name,
		spanName: spanName,
		status:   DefaultSpanStatus[REQ, RES],
		config:   DefaultConfig(),
	}
}

// AddAttributesExtractors appends extractors. They run in the order added.
func (b *Builder[REQ, RES]) AddAttributesExtractors(e ...AttributesExtractor[REQ, RES]) *Builder[REQ, RES] {
	b.extractors = append(b.extractors, e...)
	return b
}

// SetSpanStatusExtractor replaces DefaultSpanStatus.
func (b *Builder[REQ, RES]) SetSpanStatusExtractor(s SpanStatusExtractor[REQ, RES]) *Builder[REQ, RES] {
	if s != nil {
		b.status = s
	}
	return b
}

// AddOperationListeners appends listeners notified when operations start
// and end.
func (b *Builder[REQ, RES]) AddOperationListeners(l ...OperationListener) *Builder[REQ, RES] {
	b.listeners = append(b.listeners, l...)
	return b
}

// SetConfig replaces DefaultConfig.
func (b *Builder[REQ, RES]) SetConfig(c Config) *Builder[REQ, RES] {
	b.config = c
	return b
}

// SetPropagator overrides the tracer's propagator.
func (b *Builder[REQ, RES]) SetPropagator(p core.Propagator) *Builder[REQ, RES] {
	b.propagator = p
	return b
}

// BuildInstrumenter builds an instrumenter that neither injects nor
// extracts.
func (b *Builder[REQ, RES]) BuildInstrumenter(kind SpanKindExtractor[REQ]) *Instrumenter[REQ, RES] {
	if kind == nil {
		kind = AlwaysInternal[REQ]()
	}
	return b.build(kind, nil, nil)
}

// BuildClientInstrumenter builds a CLIENT instrumenter that injects the new
// span context into each request through setter.
func (b *Builder[REQ, RES]) BuildClientInstrumenter(setter core.Setter[REQ]) *Instrumenter[REQ, RES] {
	return b.build(AlwaysClient[REQ](), setter, nil)
}

// BuildServerInstrumenter builds a SERVER instrumenter that extracts the
// remote parent from each request through getter.
func (b *Builder[REQ, RES]) BuildServerInstrumenter(getter core.Getter[REQ]) *Instrumenter[REQ, RES] {
	return b.build(AlwaysServer[REQ](), nil, getter)
}

// BuildProducerInstrumenter builds a PRODUCER instrumenter that injects into
// each outgoing message through setter.
func (b *Builder[REQ, RES]) BuildProducerInstrumenter(setter core.Setter[REQ]) *Instrumenter[REQ, RES] {
	return b.build(AlwaysProducer[REQ](), setter, nil)
}

// BuildConsumerInstrumenter builds a CONSUMER instrumenter that extracts the
// remote parent from each incoming message through getter.
func (b *Builder[REQ, RES]) BuildConsumerInstrumenter(getter core.Getter[REQ]) *Instrumenter[REQ, RES] {
	return b.build(AlwaysConsumer[REQ](), nil, getter)
}

func (b *Builder[REQ, RES]) build(kind SpanKindExtractor[REQ], setter core.Setter[REQ], getter core.Getter[REQ]) *Instrumenter[REQ, RES] {
	p := b.propagator
	if p == nil {
		p = b.tracer.Propagator()
	}
	spanName := b.spanName
	if spanName == nil {
		spanName = ConstantSpanName[REQ](UnknownSpanName)
	}
	return &Instrumenter[REQ, RES]{
		tracer:     b.tracer,
		name:       b.name,
		spanName:   spanName,
		spanKind:   kind,
		extractors: append([]AttributesExtractor[REQ, RES](nil), b.extractors...),
		status:     b.status,
		listeners:  append([]OperationListener(nil), b.listeners...),
		config: Config{
			Enabled:                 b.config.Enabled,
			SuppressNestedSpans:     b.config.SuppressNestedSpans,
			CapturedRequestHeaders:  lowerAll(b.config.CapturedRequestHeaders),
			CapturedResponseHeaders: lowerAll(b.config.CapturedResponseHeaders),
		},
		propagator: p,
		setter:     setter,
		getter:     getter,
	}
}
