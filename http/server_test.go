package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ = Describe("TracedHandler", func() {
	var (
		start    time.Time
		serveMux *http.ServeMux
		fin      *finished
		trc      core.Tracer
		srv      *httptest.Server
	)

	BeforeEach(func() {
		start = time.Now()
		serveMux = http.NewServeMux()
		fin = &finished{}
		trc = newTestTracer(fin)
	})

	AfterEach(func() {
		srv.Close()
	})

	Context("for ServeMux or ListenAndServe", func() {
		BeforeEach(func() {
			serveMux.HandleFunc("/test/", func(w http.ResponseWriter, r *http.Request) {})
			serveMux.HandleFunc("/test/error", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(400)
				w.Write([]byte("There was an error"))
			})
			serveMux.HandleFunc("/test/panic", func(w http.ResponseWriter, r *http.Request) {
				panic(http.ErrAbortHandler)
			})
			serveMux.HandleFunc("/test/large-error", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(500)
				w.Write([]byte(strings.Repeat("a", 800)))
				w.Write([]byte(strings.Repeat("b", 4000)))
			})

			th := TracedHandler(serveMux, WithTracer(trc))
			srv = httptest.NewServer(th)
		})

		It("records success correctly", func() {
			_, err := http.Get(srv.URL + "/test/foo")

			Ω(err).ShouldNot(HaveOccurred())

			spans := fin.Spans()
			Ω(spans).Should(HaveLen(1))
			sp := spans[0]

			Ω(sp.Name()).Should(Equal("GET:/test/"))
			Ω(sp.Kind()).Should(Equal(trace.SpanKindServer))
			Ω(sp.ParentSpanID().IsValid()).Should(BeFalse())
			Ω(sp.RawContext().TraceID().IsValid()).Should(BeTrue())
			Ω(sp.StartTime()).Should(BeTemporally(">=", start))
			Ω(sp.EndTime()).Should(BeTemporally(">=", sp.StartTime()))

			Ω(tag(sp, "component")).Should(Equal("ctrace.TracedHandler"))
			Ω(tag(sp, "http.url")).Should(Equal("/test/foo"))
			Ω(tag(sp, "http.method")).Should(Equal("GET"))
			Ω(tag(sp, "http.remote_addr")).ShouldNot(BeEmpty())
			Ω(tag(sp, "http.user_agent")).Should(Equal("Go-http-client/1.1"))
			Ω(tag(sp, "http.status_code")).Should(Equal(int64(200)))
			code, _ := sp.Status()
			Ω(code).Should(Equal(codes.Unset))
		})

		It("records error correctly", func() {
			res, err := http.Get(srv.URL + "/test/error")

			Ω(err).ShouldNot(HaveOccurred())
			body, err := io.ReadAll(res.Body)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(string(body)).Should(Equal("There was an error"))
			Ω(res.StatusCode).Should(Equal(400))

			spans := fin.Spans()
			Ω(spans).Should(HaveLen(1))
			sp := spans[0]

			Ω(sp.Name()).Should(Equal("GET:/test/error"))
			Ω(tag(sp, "http.status_code")).Should(Equal(int64(400)))
			code, desc := sp.Status()
			Ω(code).Should(Equal(codes.Error))
			Ω(desc).Should(Equal("HTTP 400"))

			var errLog map[string]interface{}
			for _, lr := range sp.Logs() {
				fields := map[string]interface{}{}
				for _, f := range lr.Fields {
					fields[f.Key()] = f.Value()
				}
				if fields["event"] == "error" {
					errLog = fields
				}
			}
			Ω(errLog).Should(HaveKeyWithValue("error.kind", "http-server"))
			Ω(errLog).Should(HaveKeyWithValue("http.response.body", "There was an error"))
		})

		It("logs at most 1 KiB of an error body", func() {
			res, err := http.Get(srv.URL + "/test/large-error")
			Ω(err).ShouldNot(HaveOccurred())
			body, _ := io.ReadAll(res.Body)
			Ω(body).Should(HaveLen(4800))

			Eventually(fin.Spans).Should(HaveLen(1))
			var logged interface{}
			for _, lr := range fin.Spans()[0].Logs() {
				for _, f := range lr.Fields {
					if f.Key() == "http.response.body" {
						logged = f.Value()
					}
				}
			}
			Ω(logged).Should(Equal(strings.Repeat("a", 800) + strings.Repeat("b", 224)))
		})

		It("records panics", func() {
			_, err := http.Get(srv.URL + "/test/panic")
			Ω(err).Should(HaveOccurred())

			Eventually(fin.Spans).Should(HaveLen(1))
			code, desc := fin.Spans()[0].Status()
			Ω(code).Should(Equal(codes.Error))
			Ω(desc).Should(ContainSubstring("panic"))
			Ω(tag(fin.Spans()[0], "http.status_code")).Should(Equal(int64(500)))
		})

		It("continues the caller's trace", func() {
			req, _ := http.NewRequest("GET", srv.URL+"/test/foo", nil)
			req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
			_, err := http.DefaultClient.Do(req)
			Ω(err).ShouldNot(HaveOccurred())

			sp := fin.Spans()[0]
			Ω(sp.RawContext().TraceID().String()).Should(Equal("4bf92f3577b34da6a3ce929d0e0e4736"))
			Ω(sp.ParentSpanID().String()).Should(Equal("00f067aa0ba902b7"))
		})

		It("prefers forwarding headers for the remote address", func() {
			req, _ := http.NewRequest("GET", srv.URL+"/test/foo", nil)
			req.Header.Set("X-Forwarded-For", "10.1.2.3")
			_, err := http.DefaultClient.Do(req)
			Ω(err).ShouldNot(HaveOccurred())
			Ω(tag(fin.Spans()[0], "http.remote_addr")).Should(Equal("10.1.2.3"))
		})
	})

	Context("for Handle", func() {
		It("records default OperationName", func() {
			serveMux.Handle(
				"/test/",
				TracedHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), WithTracer(trc)),
			)

			srv = httptest.NewServer(serveMux)
			http.Get(srv.URL + "/test/foo")
			Ω(fin.Spans()[0].Name()).Should(Equal("GET:/test/foo"))
		})
	})

	Context("for HandleFunc", func() {
		It("records OperationName from OperationNameFunc", func() {
			serveMux.HandleFunc(
				"/test/",
				TracedHandlerFunc(
					func(w http.ResponseWriter, r *http.Request) {},
					WithTracer(trc),
					OperationNameFunc(func(r *http.Request) string {
						return r.Method + ":OVERRIDE"
					}),
				),
			)

			srv = httptest.NewServer(serveMux)
			http.Get(srv.URL + "/test/foo")
			Ω(fin.Spans()[0].Name()).Should(Equal("GET:OVERRIDE"))
		})

		It("records OperationName from OperationName", func() {
			serveMux.HandleFunc(
				"/test/",
				TracedHandlerFunc(
					func(w http.ResponseWriter, r *http.Request) {},
					WithTracer(trc),
					OperationName("OP-OVERRIDE"),
				),
			)

			srv = httptest.NewServer(serveMux)
			http.Get(srv.URL + "/test/foo")
			Ω(fin.Spans()[0].Name()).Should(Equal("OP-OVERRIDE"))
		})
	})

	Context("for gorilla/mux", func() {
		It("names spans after the route template", func() {
			r := mux.NewRouter()
			r.Use(Middleware(WithTracer(trc)))
			r.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(mux.Vars(r)["id"]))
			})

			srv = httptest.NewServer(r)
			res, err := http.Get(srv.URL + "/users/42")
			Ω(err).ShouldNot(HaveOccurred())
			body, _ := io.ReadAll(res.Body)
			Ω(string(body)).Should(Equal("42"))

			sp := fin.Spans()[0]
			Ω(sp.Name()).Should(Equal("GET:/users/{id}"))
			Ω(tag(sp, "http.route")).Should(Equal("/users/{id}"))
			Ω(tag(sp, "http.url")).Should(Equal("/users/42"))
		})
	})

	Context("behind a traced client", func() {
		It("joins the client's trace", func() {
			serveMux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
			srv = httptest.NewServer(TracedHandler(serveMux, WithTracer(trc)))
			client := &http.Client{Transport: NewTracedTransport(nil, WithTracer(trc))}

			res, err := client.Get(srv.URL + "/ok")
			Ω(err).ShouldNot(HaveOccurred())
			res.Body.Close()

			spans := fin.Spans()
			Ω(spans).Should(HaveLen(2))
			server, clientSpan := spans[0], spans[1]
			Ω(server.Kind()).Should(Equal(trace.SpanKindServer))
			Ω(clientSpan.Kind()).Should(Equal(trace.SpanKindClient))
			Ω(server.RawContext().TraceID()).Should(Equal(clientSpan.RawContext().TraceID()))
			Ω(server.ParentSpanID()).Should(Equal(clientSpan.RawContext().SpanID()))
		})
	})
})
