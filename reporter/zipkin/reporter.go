// Package zipkin exports finished spans to a Zipkin collector.
package zipkin

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/ext"
	ctlog "github.com/Nordstrom/ctrace-pipeline/log"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter"
	godebug "github.com/tj/go-debug"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var debug = godebug.Debug("ctrace:zipkin")

type spanReporter struct {
	rep      reporter.Reporter
	endpoint *model.Endpoint
}

// NewSpanReporter returns a core.SpanReporter sending every finished, sampled
// span to rep. Start and log events are ignored. When endpoint is nil the
// local endpoint is built from the span's "service" attribute.
func NewSpanReporter(rep reporter.Reporter, endpoint *model.Endpoint) core.SpanReporter {
	return &spanReporter{rep: rep, endpoint: endpoint}
}

func (r *spanReporter) Report(sp opentracing.Span) {
	cs, ok := sp.(core.Span)
	if !ok {
		debug("skipping foreign span %T", sp)
		return
	}
	if !cs.IsEnded() || !cs.RawContext().IsSampled() {
		return
	}
	r.rep.Send(r.model(cs))
}

func (r *spanReporter) model(sp core.Span) model.SpanModel {
	sc := sp.RawContext()
	tid := sc.TraceID()
	sid := sc.SpanID()
	sampled := true

	m := model.SpanModel{
		SpanContext: model.SpanContext{
			TraceID: model.TraceID{
				High: binary.BigEndian.Uint64(tid[:8]),
				Low:  binary.BigEndian.Uint64(tid[8:]),
			},
			ID:      model.ID(binary.BigEndian.Uint64(sid[:])),
			Sampled: &sampled,
		},
		Name:          sp.Name(),
		Kind:          kind(sp.Kind()),
		Timestamp:     sp.StartTime(),
		Duration:      sp.EndTime().Sub(sp.StartTime()),
		LocalEndpoint: r.endpoint,
		Tags:          map[string]string{},
	}
	if pid := sp.ParentSpanID(); pid.IsValid() {
		id := model.ID(binary.BigEndian.Uint64(pid[:]))
		m.ParentID = &id
	}

	for _, kv := range sp.Attributes() {
		m.Tags[string(kv.Key)] = kv.Value.Emit()
	}
	if code, desc := sp.Status(); code == codes.Error {
		if desc == "" {
			desc = "true"
		}
		m.Tags[ext.ErrorKey] = desc
	}
	if m.LocalEndpoint == nil {
		if svc, ok := m.Tags[ext.ServiceKey]; ok {
			m.LocalEndpoint = &model.Endpoint{ServiceName: svc}
		}
	}

	for _, lr := range sp.Logs() {
		if v := annotation(lr); v != "" {
			m.Annotations = append(m.Annotations, model.Annotation{Timestamp: lr.Timestamp, Value: v})
		}
	}
	return m
}

func kind(k trace.SpanKind) model.Kind {
	switch k {
	case trace.SpanKindClient:
		return model.Client
	case trace.SpanKindServer:
		return model.Server
	case trace.SpanKindProducer:
		return model.Producer
	case trace.SpanKindConsumer:
		return model.Consumer
	}
	return model.Undetermined
}

// annotation renders a log record as "event" or "event k=v ...". Span start
// and finish records are dropped since Zipkin carries them as timestamps.
func annotation(lr opentracing.LogRecord) string {
	var (
		event string
		rest  []string
	)
	for _, f := range lr.Fields {
		if f.Key() == "event" {
			event = fmt.Sprint(f.Value())
			continue
		}
		rest = append(rest, fmt.Sprintf("%s=%v", f.Key(), f.Value()))
	}
	if event == ctlog.EventStartSpan || event == ctlog.EventFinishSpan {
		return ""
	}
	if event == "" {
		return strings.Join(rest, " ")
	}
	return strings.TrimSpace(event + " " + strings.Join(rest, " "))
}
