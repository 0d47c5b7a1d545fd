package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Lines is used for testing
func (b *Buffer) Lines() []string {
	return strings.Split(b.String(), "\n")
}

// Buffer is used for testing. It is safe for concurrent writers.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset discards everything written so far.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// SpanModel is used for testing
type SpanModel struct {
	TraceID           string                     `json:"traceId"`
	SpanID            string                     `json:"spanId"`
	ParentID          string                     `json:"parentId"`
	Operation         string                     `json:"operation"`
	Kind              string                     `json:"kind"`
	Start             int64                      `json:"start"`
	Finish            int64                      `json:"finish"`
	Duration          int64                      `json:"duration"`
	Status            string                     `json:"status"`
	StatusDescription string                     `json:"statusDescription"`
	Tags              map[string]interface{}     `json:"tags"`
	Logs              [](map[string]interface{}) `json:"logs"`
	Baggage           map[string]string          `json:"baggage"`
}

// Spans is used for testing
func (b *Buffer) Spans() []SpanModel {
	out := []SpanModel{}
	ls := b.Lines()
	for i, l := range ls {
		if l == "" {
			continue
		}
		var s SpanModel
		if err := json.Unmarshal([]byte(l), &s); err != nil {
			fmt.Printf("buf (%d lines): %s\n", len(ls), ls)
			panic("Cannot unmarshal JSON (" + err.Error() + ") for line " + strconv.Itoa(i) + l)
		}
		out = append(out, s)
	}
	return out
}

// MustTraceID is used for testing. It panics on malformed input.
func MustTraceID(h string) trace.TraceID {
	id, err := trace.TraceIDFromHex(h)
	if err != nil {
		panic(err)
	}
	return id
}

// MustSpanID is used for testing. It panics on malformed input.
func MustSpanID(h string) trace.SpanID {
	id, err := trace.SpanIDFromHex(h)
	if err != nil {
		panic(err)
	}
	return id
}
