package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

var _ = Describe("Transport", func() {
	var (
		start  time.Time
		mux    *http.ServeMux
		fin    *finished
		trc    core.Tracer
		srv    *httptest.Server
		client *http.Client
		hdrs   http.Header
	)

	BeforeEach(func() {
		start = time.Now()
		fin = &finished{}
		trc = newTestTracer(fin)
		mux = http.NewServeMux()
		mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
			hdrs = r.Header
			w.Header().Set("X-Served-By", "test")
			w.Write([]byte("OK"))
		})
		mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "failure", http.StatusInternalServerError)
		})
		srv = httptest.NewServer(mux)
		client = &http.Client{Transport: NewTracedTransport(http.DefaultTransport, WithTracer(trc))}
	})

	AfterEach(func() {
		srv.Close()
	})

	It("handles ok with top", func() {
		ctx, top := trc.Start(context.Background(), "top")
		req, _ := http.NewRequestWithContext(ctx, "GET", srv.URL+"/ok", nil)
		res, err := client.Do(req)
		Ω(err).ShouldNot(HaveOccurred())
		Ω(fin.Spans()).Should(BeEmpty())

		body, _ := io.ReadAll(res.Body)
		res.Body.Close()
		Ω(string(body)).Should(Equal("OK"))
		spans := fin.Spans()
		Ω(spans).Should(HaveLen(1))

		sp := spans[0]
		Ω(sp.Name()).Should(Equal("GET:/ok"))
		Ω(sp.Kind()).Should(Equal(trace.SpanKindClient))
		Ω(sp.ParentSpanID()).Should(Equal(top.RawContext().SpanID()))
		Ω(sp.RawContext().TraceID()).Should(Equal(top.RawContext().TraceID()))
		Ω(sp.StartTime()).Should(BeTemporally(">=", start))
		Ω(sp.EndTime()).Should(BeTemporally(">=", sp.StartTime()))

		Ω(tag(sp, "component")).Should(Equal("ctrace.TracedTransport"))
		Ω(tag(sp, "http.url")).Should(Equal(srv.URL + "/ok"))
		Ω(tag(sp, "http.method")).Should(Equal("GET"))
		Ω(tag(sp, "http.status_code")).Should(Equal(int64(200)))
		Ω(tag(sp, "peer.hostname")).Should(Equal("127.0.0.1"))
		Ω(tag(sp, "peer.port")).ShouldNot(BeNil())

		Ω(hdrs.Get("traceparent")).Should(Equal(
			"00-" + sp.RawContext().TraceID().String() + "-" + sp.RawContext().SpanID().String() + "-01"))
		Ω(req.Header.Get("traceparent")).Should(BeEmpty())
	})

	It("records status >= 400 as an error", func() {
		res, err := client.Get(srv.URL + "/fail")
		Ω(err).ShouldNot(HaveOccurred())
		res.Body.Close()
		res.Body.Close()

		spans := fin.Spans()
		Ω(spans).Should(HaveLen(1))
		code, desc := spans[0].Status()
		Ω(code).Should(Equal(codes.Error))
		Ω(desc).Should(Equal("HTTP 500"))
		Ω(tag(spans[0], "http.status_code")).Should(Equal(int64(500)))
	})

	It("ends HEAD requests immediately", func() {
		res, err := client.Head(srv.URL + "/ok")
		Ω(err).ShouldNot(HaveOccurred())
		Ω(fin.Spans()).Should(HaveLen(1))
		res.Body.Close()
		Ω(fin.Spans()).Should(HaveLen(1))
	})

	It("records transport errors", func() {
		client = &http.Client{Transport: NewTracedTransport(failingTransport{}, WithTracer(trc))}
		_, err := client.Get("http://example.invalid/x")
		Ω(err).Should(HaveOccurred())

		spans := fin.Spans()
		Ω(spans).Should(HaveLen(1))
		code, desc := spans[0].Status()
		Ω(code).Should(Equal(codes.Error))
		Ω(desc).Should(Equal("connection refused"))
		Ω(tag(spans[0], "peer.port")).Should(Equal(int64(80)))
	})

	It("suppresses nested traced transports", func() {
		inner := NewTracedTransport(http.DefaultTransport, WithTracer(trc))
		client = &http.Client{Transport: NewTracedTransport(inner, WithTracer(trc))}
		res, err := client.Get(srv.URL + "/ok")
		Ω(err).ShouldNot(HaveOccurred())
		res.Body.Close()
		Ω(fin.Spans()).Should(HaveLen(1))
	})

	It("captures configured headers", func() {
		cfg := instrumenter.DefaultConfig()
		cfg.CapturedRequestHeaders = []string{"X-Request-Id"}
		cfg.CapturedResponseHeaders = []string{"X-Served-By"}
		client = &http.Client{Transport: NewTracedTransport(nil, WithTracer(trc), WithConfig(cfg))}

		req, _ := http.NewRequest("GET", srv.URL+"/ok", nil)
		req.Header.Set("X-Request-Id", "r-1")
		res, err := client.Do(req)
		Ω(err).ShouldNot(HaveOccurred())
		res.Body.Close()

		sp := fin.Spans()[0]
		Ω(tag(sp, "http.request.header.x-request-id")).Should(Equal([]string{"r-1"}))
		Ω(tag(sp, "http.response.header.x-served-by")).Should(Equal([]string{"test"}))
	})

	It("records OperationName", func() {
		client = &http.Client{Transport: NewTracedTransport(nil, WithTracer(trc), OperationName("call-ok"))}
		res, err := client.Get(srv.URL + "/ok")
		Ω(err).ShouldNot(HaveOccurred())
		res.Body.Close()
		Ω(fin.Spans()[0].Name()).Should(Equal("call-ok"))
	})
})
