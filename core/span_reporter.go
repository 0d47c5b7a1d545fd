package core

import (
	"io"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
)

// SpanReporter reports the current state of a Span.  It is intended to reports
// Start-Span, Log, and Finish-Span events.
type SpanReporter interface {
	Report(opentracing.Span)
}

type spanReporter struct {
	io.Writer
	SpanEncoder
	sync.Mutex
}

// NewSpanReporter creates a new default SpanReporter.
func NewSpanReporter(w io.Writer, e SpanEncoder) SpanReporter {
	return &spanReporter{Writer: w, SpanEncoder: e}
}

func (r *spanReporter) Report(sp opentracing.Span) {
	bytes := r.Encode(sp)
	expectedBytes := len(bytes)
	if expectedBytes == 0 {
		return
	}

	r.Lock()
	defer r.Unlock()
	n, err := r.Write(bytes)

	if err != nil {
		debug("report: %v", err)
		return
	}

	if expectedBytes != n {
		debug("expected %d bytes reported, but had %d instead", expectedBytes, n)
	}
}

type multiReporter []SpanReporter

// NewMultiReporter fans every report out to each of reporters.
func NewMultiReporter(reporters ...SpanReporter) SpanReporter {
	return multiReporter(reporters)
}

func (m multiReporter) Report(sp opentracing.Span) {
	for _, r := range m {
		r.Report(sp)
	}
}
