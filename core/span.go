package core

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Nordstrom/ctrace-pipeline/internal/goid"
	ctlog "github.com/Nordstrom/ctrace-pipeline/log"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span represents an active, un-finished span.
//
// Spans are created by the Tracer interface. A Span is also an
// opentracing.Span, so code written against OpenTracing keeps working.
type Span interface {
	opentracing.Span
	RawContext() SpanContext
	RawTracer() Tracer

	Name() string
	Kind() trace.SpanKind
	ParentSpanID() trace.SpanID

	// SetAttributes records attributes on the span. Later writes to the same
	// key win. Ignored once the span has ended.
	SetAttributes(kv ...attribute.KeyValue)
	Attributes() []attribute.KeyValue
	Attribute(key attribute.Key) (attribute.Value, bool)

	// SetStatus sets the span status. An Error status is never downgraded.
	SetStatus(code codes.Code, description string)
	Status() (codes.Code, string)

	// RecordError logs an "error" event carrying err.
	RecordError(err error, fields ...log.Field)
	Logs() []opentracing.LogRecord

	StartTime() time.Time
	EndTime() time.Time
	IsEnded() bool
	IsRecording() bool

	// End ends the span at t, or at the tracer clock's now when t is zero.
	// It returns true only for the call that actually ended the span.
	End(t time.Time) bool

	// Retain keeps the span alive past End, e.g. while a continuation
	// captured from it is pending. It fails once the span is complete.
	Retain() bool
	Release()
}

type span struct {
	tracer     *tracer
	sync.Mutex // protects the fields below

	context spanContext

	// The SpanID of this SpanContext's first intra-trace reference (i.e.,
	// "parent"), or zero if there is no parent.
	parentID trace.SpanID

	// parentRemote is set when the parent was extracted from a carrier.
	parentRemote bool

	// The name of the "operation" this span is an instance of.
	operation string
	kind      trace.SpanKind

	// We store <start, duration> rather than <start, end> so that only
	// one of the timestamps has global clock uncertainty issues.
	start    time.Time
	finish   time.Time
	duration time.Duration

	attrs map[attribute.Key]attribute.Value

	statusCode        codes.Code
	statusDescription string

	logs []opentracing.LogRecord

	ended bool
	owner uint64

	// refs starts at one for the span's own lifecycle; End releases it.
	refs      int32
	completed atomic.Bool

	prefix []byte
}

func (s *span) checkOwner() {
	if s.owner != 0 && s.owner != goid.Current() {
		panic("ctrace: span used from a goroutine other than the one that started it")
	}
}

func (s *span) SetOperationName(operationName string) opentracing.Span {
	s.Lock()
	defer s.Unlock()
	s.checkOwner()
	if !s.ended {
		s.operation = operationName
		s.prefix = nil
	}
	return s
}

func (s *span) SetTag(key string, value interface{}) opentracing.Span {
	s.SetAttributes(attributeFromTag(key, value))
	return s
}

func (s *span) SetAttributes(kv ...attribute.KeyValue) {
	s.Lock()
	defer s.Unlock()
	s.checkOwner()
	if s.ended {
		return
	}
	s.setAttributes(kv)
}

func (s *span) setAttributes(kv []attribute.KeyValue) {
	if s.attrs == nil {
		s.attrs = make(map[attribute.Key]attribute.Value, len(kv))
	}
	for _, a := range kv {
		if !a.Valid() {
			continue
		}
		s.attrs[a.Key] = a.Value
	}
}

func (s *span) Attributes() []attribute.KeyValue {
	s.Lock()
	defer s.Unlock()
	return s.sortedAttributes()
}

func (s *span) sortedAttributes() []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(s.attrs))
	for k, v := range s.attrs {
		out = append(out, attribute.KeyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *span) Attribute(key attribute.Key) (attribute.Value, bool) {
	s.Lock()
	defer s.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

func (s *span) SetStatus(code codes.Code, description string) {
	s.Lock()
	defer s.Unlock()
	if s.ended || s.statusCode == codes.Error && code != codes.Error {
		return
	}
	s.statusCode = code
	if code == codes.Error {
		s.statusDescription = description
	} else {
		s.statusDescription = ""
	}
}

func (s *span) Status() (codes.Code, string) {
	s.Lock()
	defer s.Unlock()
	return s.statusCode, s.statusDescription
}

func (s *span) RecordError(err error, fields ...log.Field) {
	if err == nil {
		return
	}
	s.LogFields(append(ctlog.Error(errorKind(err), err), fields...)...)
}

func (s *span) LogKV(keyValues ...interface{}) {
	fields, err := log.InterleavedKVToFields(keyValues...)
	if err != nil {
		s.LogFields(log.Error(err), log.String("function", "LogKV"))
		return
	}
	s.LogFields(fields...)
}

func (s *span) LogFields(fields ...log.Field) {
	l := opentracing.LogRecord{
		Fields: fields,
	}
	s.reportLog(l)
}

func (s *span) reportLog(l opentracing.LogRecord) {
	s.Lock()
	s.checkOwner()
	if s.ended {
		s.Unlock()
		return
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = s.tracer.options.Clock.Now()
	}
	multi := s.tracer.options.MultiEvent
	if multi {
		s.logs[0] = l
	} else {
		s.logs = append(s.logs, l)
	}
	s.Unlock()

	if multi {
		s.tracer.report(s)
	}
}

func (s *span) Logs() []opentracing.LogRecord {
	s.Lock()
	defer s.Unlock()
	out := make([]opentracing.LogRecord, len(s.logs))
	copy(out, s.logs)
	return out
}

func (s *span) LogEvent(event string) {
	s.Log(opentracing.LogData{
		Event: event,
	})
}

func (s *span) LogEventWithPayload(event string, payload interface{}) {
	s.Log(opentracing.LogData{
		Event:   event,
		Payload: payload,
	})
}

func (s *span) Log(ld opentracing.LogData) {
	s.reportLog(ld.ToLogRecord())
}

func (s *span) Finish() {
	s.End(time.Time{})
}

func (s *span) FinishWithOptions(opts opentracing.FinishOptions) {
	for _, lr := range opts.LogRecords {
		s.reportLog(lr)
	}
	for _, ld := range opts.BulkLogData {
		s.reportLog(ld.ToLogRecord())
	}
	s.End(opts.FinishTime)
}

func (s *span) End(finishTime time.Time) bool {
	if finishTime.IsZero() {
		finishTime = s.tracer.options.Clock.Now()
	}

	s.Lock()
	if s.ended {
		s.Unlock()
		return false
	}
	s.ended = true
	s.finish = finishTime
	s.duration = finishTime.Sub(s.start)

	log := opentracing.LogRecord{
		Timestamp: finishTime,
		Fields:    []log.Field{ctlog.Event(ctlog.EventFinishSpan)},
	}

	if s.tracer.options.MultiEvent {
		s.logs[0] = log
	} else {
		s.logs = append(s.logs, log)
	}
	s.Unlock()

	s.tracer.report(s)
	s.Release()
	return true
}

func (s *span) IsEnded() bool {
	s.Lock()
	defer s.Unlock()
	return s.ended
}

func (s *span) IsRecording() bool {
	return !s.IsEnded()
}

func (s *span) Retain() bool {
	for {
		n := atomic.LoadInt32(&s.refs)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&s.refs, n, n+1) {
			return true
		}
	}
}

func (s *span) Release() {
	if atomic.AddInt32(&s.refs, -1) != 0 {
		return
	}
	if s.completed.CompareAndSwap(false, true) && s.tracer.options.OnSpanComplete != nil {
		s.tracer.options.OnSpanComplete(s)
	}
}

func (s *span) Name() string {
	s.Lock()
	defer s.Unlock()
	return s.operation
}

func (s *span) Kind() trace.SpanKind {
	return s.kind
}

func (s *span) ParentSpanID() trace.SpanID {
	return s.parentID
}

func (s *span) StartTime() time.Time {
	return s.start
}

func (s *span) EndTime() time.Time {
	s.Lock()
	defer s.Unlock()
	return s.finish
}

func (s *span) Context() opentracing.SpanContext {
	return s.RawContext()
}

func (s *span) RawContext() SpanContext {
	s.Lock()
	defer s.Unlock()
	return s.context
}

func (s *span) Tracer() opentracing.Tracer {
	return s.tracer
}

func (s *span) RawTracer() Tracer {
	return s.tracer
}

func (s *span) SetBaggageItem(key, val string) opentracing.Span {
	s.Lock()
	defer s.Unlock()
	s.context = s.context.WithBaggageItem(key, val)
	return s
}

func (s *span) BaggageItem(key string) string {
	s.Lock()
	defer s.Unlock()
	return s.context.baggage[key]
}
