package core

import (
	"context"
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Nordstrom/ctrace-pipeline/ext"
	"github.com/Nordstrom/ctrace-pipeline/internal/goid"
	ctlog "github.com/Nordstrom/ctrace-pipeline/log"
	"github.com/google/uuid"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/openzipkin/zipkin-go"
	godebug "github.com/tj/go-debug"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var debug = godebug.Debug("ctrace:core")

// Tracer is a simple, thin interface for Span creation and SpanContext
// propagation.
type Tracer interface {
	opentracing.Tracer
	StartSpanWithOptions(string, opentracing.StartSpanOptions) opentracing.Span

	// Start starts a span named name whose parent is the span (or remote
	// span context) found in ctx, and returns ctx extended with the new span.
	Start(ctx context.Context, name string, opts ...StartOption) (context.Context, Span)

	Propagator() Propagator
	Now() time.Time
}

// tracer implements the `Tracer` interface.
type tracer struct {
	options TracerOptions
	rng     *rand.Rand
	sync.Mutex
}

// TracerOptions allows creating a customized Tracer via NewWithOptions. The object
// must not be updated when there is an active tracer using it.
type TracerOptions struct {
	// MultiEvent tells whether the tracer outputs in Single-Event or Multi-Event Mode.
	// If MultiEvent=true, the tracer is using Multi-Event Mode which means Start-Span, Log,
	// and Finish-Span events are output with each containing a single log.
	// If MultiEvent=false (default), the tracer is using Single-Event Mode which
	// means only Finish-Span events are output with a collection of all logs for that Span.
	MultiEvent bool

	// Writer is used to write serialized trace events.  It defaults to os.Stdout.
	// Ignored when Reporter is set.
	Writer io.Writer

	// ServiceName allows the configuration of the "service" tag for the entire Tracer.
	// If not specified here, it can also be specified using environment variable "CTRACE_SERVICE_NAME"
	ServiceName string

	// Reporter receives every reported span event. Defaults to a JSON
	// reporter writing to Writer.
	Reporter SpanReporter

	// Propagator serializes span contexts into carriers. Defaults to the
	// ctrace text map format combined with W3C trace context.
	Propagator Propagator

	// Sampler decides, from the low 64 bits of a new trace id, whether a
	// root span is sampled. Children inherit their parent's decision.
	// Unsampled spans are still recorded but never reported.
	Sampler zipkin.Sampler

	// Clock provides span timestamps. Defaults to clockz.RealClock.
	Clock clockz.Clock

	// OnSpanComplete is called once per span after it has ended and every
	// holder that retained it has released it.
	OnSpanComplete func(Span)

	// DebugAssertSingleGoroutine internally records the ID of the goroutine
	// creating each Span and verifies that no mutation is carried out on
	// it on a different goroutine.
	// Provided strictly for development purposes. Spans handed across
	// goroutines through continuations trip this assertion, so leave it off
	// when the executor or messaging adapters are used.
	DebugAssertSingleGoroutine bool
}

// New creates a default Tracer.
func New() Tracer {
	return NewWithOptions(TracerOptions{
		MultiEvent: true,
		Writer:     nil,
	})
}

// NewWithOptions creates a customized Tracer.
func NewWithOptions(opts TracerOptions) Tracer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	if opts.ServiceName == "" {
		opts.ServiceName = os.Getenv("CTRACE_SERVICE_NAME")
	}

	if opts.Reporter == nil {
		opts.Reporter = NewSpanReporter(opts.Writer, NewSpanEncoder())
	}

	if opts.Propagator == nil {
		opts.Propagator = NewCompositePropagator(TextMap(), TraceContext())
	}

	if opts.Sampler == nil {
		opts.Sampler = zipkin.AlwaysSample
	}

	if opts.Clock == nil {
		opts.Clock = clockz.RealClock
	}

	return &tracer{
		options: opts,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (t *tracer) Propagator() Propagator {
	return t.options.Propagator
}

func (t *tracer) Now() time.Time {
	return t.options.Clock.Now()
}

func (t *tracer) StartSpan(
	operationName string,
	opts ...opentracing.StartSpanOption,
) opentracing.Span {
	sso := opentracing.StartSpanOptions{}
	for _, o := range opts {
		o.Apply(&sso)
	}
	return t.StartSpanWithOptions(operationName, sso)
}

func (t *tracer) StartSpanWithOptions(
	operationName string,
	opts opentracing.StartSpanOptions,
) opentracing.Span {
	cfg := StartConfig{StartTime: opts.StartTime}

	// Only the first reference is used as the parent.
	for _, ref := range opts.References {
		if sc, ok := ref.ReferencedContext.(SpanContext); ok {
			cfg.Parent = sc
			break
		}
	}

	for k, v := range opts.Tags {
		if k == ext.SpanKindKey {
			cfg.Kind = kindFromTag(v)
			continue
		}
		cfg.Attributes = append(cfg.Attributes, attributeFromTag(k, v))
	}
	if cfg.Parent == nil {
		cfg.NewRoot = true
	}
	return t.startSpan(operationName, cfg)
}

func (t *tracer) Start(ctx context.Context, name string, opts ...StartOption) (context.Context, Span) {
	cfg := StartConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Parent == nil && !cfg.NewRoot {
		cfg.Parent = SpanContextFromContext(ctx)
	}
	sp := t.startSpan(name, cfg)
	return ContextWithSpan(ctx, sp), sp
}

func (t *tracer) startSpan(name string, cfg StartConfig) *span {
	startTime := cfg.StartTime
	if startTime.IsZero() {
		startTime = t.options.Clock.Now()
	}
	kind := cfg.Kind
	if kind == trace.SpanKindUnspecified {
		kind = trace.SpanKindInternal
	}

	sp := &span{
		tracer:    t,
		start:     startTime,
		operation: name,
		kind:      kind,
		duration:  -1,
		refs:      1,
	}

	if t.options.ServiceName != "" {
		sp.setAttributes([]attribute.KeyValue{attribute.String(ext.ServiceKey, t.options.ServiceName)})
	}
	sp.setAttributes(cfg.Attributes)

	sp.logs = make([]opentracing.LogRecord, 0, 10)
	sp.logs = append(sp.logs, opentracing.LogRecord{
		Timestamp: startTime,
		Fields:    []log.Field{ctlog.Event(ctlog.EventStartSpan)},
	})

	if t.options.DebugAssertSingleGoroutine {
		sp.owner = goid.Current()
	}

	if parent := cfg.Parent; parent != nil && parent.IsValid() {
		refCtx := toSpanContext(parent)
		sp.context.traceID = refCtx.traceID
		sp.context.spanID = t.randomID()
		sp.context.flags = refCtx.flags
		sp.parentID = refCtx.spanID
		sp.parentRemote = refCtx.remote

		if l := len(refCtx.baggage); l > 0 {
			sp.context.baggage = make(map[string]string, l)
			for k, v := range refCtx.baggage {
				sp.context.baggage[k] = v
			}
		}
	} else {
		// No parent Span found; allocate new trace and span ids and determine
		// the Sampled status.
		sp.context.traceID = trace.TraceID(uuid.New())
		sp.context.spanID = t.randomID()
		if t.options.Sampler(binary.BigEndian.Uint64(sp.context.traceID[8:])) {
			sp.context.flags = trace.FlagsSampled
		}
	}

	debug("start span %s %s/%s", name, sp.context.traceID, sp.context.spanID)
	if t.options.MultiEvent {
		t.report(sp)
	}
	return sp
}

func (t *tracer) report(sp *span) {
	if !sp.context.IsSampled() {
		return
	}
	t.options.Reporter.Report(sp)
}

func (t *tracer) Inject(sc opentracing.SpanContext, format interface{}, carrier interface{}) error {
	raw, ok := sc.(SpanContext)
	if !ok {
		return opentracing.ErrInvalidSpanContext
	}
	switch format {
	case opentracing.TextMap, opentracing.HTTPHeaders:
		w, ok := carrier.(opentracing.TextMapWriter)
		if !ok {
			return opentracing.ErrInvalidCarrier
		}
		ctx := contextWithActive(context.Background(), nil, raw)
		t.options.Propagator.Inject(ctx, writerCarrier{w})
		return nil
	}
	return opentracing.ErrUnsupportedFormat
}

func (t *tracer) Extract(format interface{}, carrier interface{}) (opentracing.SpanContext, error) {
	switch format {
	case opentracing.TextMap, opentracing.HTTPHeaders:
		r, ok := carrier.(opentracing.TextMapReader)
		if !ok {
			return nil, opentracing.ErrInvalidCarrier
		}
		m := TextMapCarrier{}
		err := r.ForeachKey(func(k, v string) error {
			m[strings.ToLower(k)] = v
			return nil
		})
		if err != nil {
			return nil, err
		}
		ctx := t.options.Propagator.Extract(context.Background(), m)
		sc := SpanContextFromContext(ctx)
		if sc == nil {
			return nil, opentracing.ErrSpanContextNotFound
		}
		return sc, nil
	}
	return nil, opentracing.ErrUnsupportedFormat
}

// randomID generates a random span ID. It never returns the zero id.
func (t *tracer) randomID() trace.SpanID {
	t.Lock()
	defer t.Unlock()

	var id trace.SpanID
	for !id.IsValid() {
		binary.BigEndian.PutUint64(id[:], t.rng.Uint64())
	}
	return id
}

func kindFromTag(v interface{}) trace.SpanKind {
	s, _ := v.(string)
	switch s {
	case ext.SpanKindClientValue:
		return trace.SpanKindClient
	case ext.SpanKindServerValue:
		return trace.SpanKindServer
	case ext.SpanKindProducerValue:
		return trace.SpanKindProducer
	case ext.SpanKindConsumerValue:
		return trace.SpanKindConsumer
	}
	return trace.SpanKindInternal
}
