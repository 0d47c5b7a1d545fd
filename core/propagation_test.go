package core_test

import (
	"context"
	"net/http"
	"time"

	"github.com/Nordstrom/ctrace-pipeline/core"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const (
	w3cTrace = "4bf92f3577b34da6a3ce929d0e0e4736"
	w3cSpan  = "00f067aa0ba902b7"
)

type request struct {
	headers map[string]string
}

var requestSetter = core.SetterFunc[*request](func(r *request, key, value string) {
	r.headers[key] = value
})

var requestGetter = core.GetterFunc[*request](func(r *request, key string) string {
	return r.headers[key]
})

var _ = Describe("Propagation", func() {
	var (
		trc core.Tracer
		buf core.Buffer
	)

	BeforeEach(func() {
		trc = core.NewWithOptions(core.TracerOptions{Writer: &buf})
	})

	Describe("TraceContext", func() {
		p := core.TraceContext()

		It("extracts traceparent as the remote parent", func() {
			carrier := core.TextMapCarrier{"traceparent": "00-" + w3cTrace + "-" + w3cSpan + "-01"}
			ctx := p.Extract(context.Background(), carrier)

			sc := core.SpanContextFromContext(ctx)
			Ω(sc).ShouldNot(BeNil())
			Ω(sc.TraceID().String()).Should(Equal(w3cTrace))
			Ω(sc.SpanID().String()).Should(Equal(w3cSpan))
			Ω(sc.IsRemote()).Should(BeTrue())
			Ω(sc.IsSampled()).Should(BeTrue())

			_, sp := trc.Start(ctx, "child")
			Ω(sp.RawContext().TraceID().String()).Should(Equal(w3cTrace))
			Ω(sp.ParentSpanID().String()).Should(Equal(w3cSpan))
			Ω(sp.RawContext().SpanID().String()).ShouldNot(Equal(w3cSpan))
		})

		It("round trips span context and baggage", func() {
			ctx, sp := trc.Start(context.Background(), "x")
			sp.SetBaggageItem("user", "alice")
			ctx = core.ContextWithSpan(ctx, sp)

			carrier := core.TextMapCarrier{}
			p.Inject(ctx, carrier)
			Ω(carrier["traceparent"]).Should(HavePrefix("00-" + sp.RawContext().TraceID().String()))
			Ω(carrier["baggage"]).Should(Equal("user=alice"))

			sc := core.SpanContextFromContext(p.Extract(context.Background(), carrier))
			Ω(sc.SpanID()).Should(Equal(sp.RawContext().SpanID()))
			Ω(sc.BaggageItem("user")).Should(Equal("alice"))
		})

		It("ignores malformed headers", func() {
			parent := context.WithValue(context.Background(), struct{}{}, "v")
			ctx := p.Extract(parent, core.TextMapCarrier{"traceparent": "00-zz-yy-01"})
			Ω(ctx).Should(Equal(parent))
			Ω(core.SpanContextFromContext(ctx)).Should(BeNil())
		})

		It("injects nothing without a span", func() {
			carrier := core.TextMapCarrier{}
			p.Inject(context.Background(), carrier)
			Ω(carrier).Should(BeEmpty())
		})
	})

	Describe("B3", func() {
		It("round trips multi headers", func() {
			ctx, sp := trc.Start(context.Background(), "x")
			hdrs := http.Header{}
			core.B3().Inject(ctx, core.HTTPHeadersCarrier(hdrs))
			Ω(hdrs.Get("X-B3-Traceid")).Should(Equal(sp.RawContext().TraceID().String()))
			Ω(hdrs.Get("X-B3-Spanid")).Should(Equal(sp.RawContext().SpanID().String()))
			Ω(hdrs.Get("X-B3-Sampled")).Should(Equal("1"))

			sc := core.SpanContextFromContext(core.B3().Extract(context.Background(), core.HTTPHeadersCarrier(hdrs)))
			Ω(sc.TraceID()).Should(Equal(sp.RawContext().TraceID()))
			Ω(sc.SpanID()).Should(Equal(sp.RawContext().SpanID()))
		})

		It("round trips the single header", func() {
			ctx, sp := trc.Start(context.Background(), "x")
			carrier := core.TextMapCarrier{}
			core.B3Single().Inject(ctx, carrier)
			Ω(carrier).Should(HaveKey("b3"))

			sc := core.SpanContextFromContext(core.B3().Extract(context.Background(), carrier))
			Ω(sc.SpanID()).Should(Equal(sp.RawContext().SpanID()))
		})

		It("ignores malformed headers", func() {
			carrier := core.TextMapCarrier{"x-b3-traceid": "nope", "x-b3-spanid": "nope"}
			ctx := core.B3().Extract(context.Background(), carrier)
			Ω(core.SpanContextFromContext(ctx)).Should(BeNil())
		})
	})

	Describe("TextMap", func() {
		It("marks unsampled contexts", func() {
			carrier := core.TextMapCarrier{
				"ct-trace-id": parentTraceHex,
				"ct-span-id":  parentSpanHex,
				"ct-sampled":  "0",
			}
			sc := core.SpanContextFromContext(core.TextMap().Extract(context.Background(), carrier))
			Ω(sc.IsSampled()).Should(BeFalse())
		})

		It("ignores a lone span id", func() {
			carrier := core.TextMapCarrier{"ct-span-id": parentSpanHex}
			ctx := core.TextMap().Extract(context.Background(), carrier)
			Ω(core.SpanContextFromContext(ctx)).Should(BeNil())
		})

		It("is one of the default tracer formats", func() {
			ctx, sp := trc.Start(context.Background(), "op")
			defer sp.End(time.Time{})

			carrier := core.TextMapCarrier{}
			trc.Propagator().Inject(ctx, carrier)
			Ω(carrier["ct-trace-id"]).Should(Equal(sp.RawContext().TraceID().String()))
			Ω(carrier["ct-span-id"]).Should(Equal(sp.RawContext().SpanID().String()))
			Ω(carrier).Should(HaveKey("traceparent"))
		})
	})

	Describe("Composite", func() {
		It("injects every format and lists every field", func() {
			p := core.NewCompositePropagator(core.TextMap(), core.TraceContext(), core.B3())
			ctx, _ := trc.Start(context.Background(), "x")
			carrier := core.TextMapCarrier{}
			p.Inject(ctx, carrier)
			Ω(carrier).Should(HaveKey("ct-trace-id"))
			Ω(carrier).Should(HaveKey("traceparent"))
			Ω(carrier).Should(HaveKey("x-b3-traceid"))
			Ω(p.Fields()).Should(ContainElements("ct-trace-id", "traceparent", "baggage", "x-b3-traceid"))
		})

		It("lets the last format found win", func() {
			p := core.NewCompositePropagator(core.TextMap(), core.TraceContext())
			carrier := core.TextMapCarrier{
				"ct-trace-id": parentTraceHex,
				"ct-span-id":  parentSpanHex,
				"traceparent": "00-" + w3cTrace + "-" + w3cSpan + "-01",
			}
			sc := core.SpanContextFromContext(p.Extract(context.Background(), carrier))
			Ω(sc.SpanID().String()).Should(Equal(w3cSpan))
		})
	})

	Describe("Setter and Getter", func() {
		It("injects through a setter and extracts through a getter", func() {
			ctx, sp := trc.Start(context.Background(), "x")
			req := &request{headers: map[string]string{}}
			core.Inject(ctx, core.TraceContext(), req, requestSetter)
			Ω(req.headers).Should(HaveKey("traceparent"))

			out := core.Extract(context.Background(), core.TraceContext(), req, requestGetter)
			Ω(core.SpanContextFromContext(out).SpanID()).Should(Equal(sp.RawContext().SpanID()))
		})

		It("tolerates a failing setter", func() {
			ctx, _ := trc.Start(context.Background(), "x")
			failing := core.SetterFunc[*request](func(*request, string, string) {
				panic("carrier is read only")
			})
			Ω(func() {
				core.Inject(ctx, core.TraceContext(), &request{}, failing)
			}).ShouldNot(Panic())
		})

		It("returns the parent when the getter fails", func() {
			failing := core.GetterFunc[*request](func(*request, string) string {
				panic("broken carrier")
			})
			parent := context.Background()
			Ω(core.Extract(parent, core.TraceContext(), &request{}, failing)).Should(Equal(parent))
		})

		It("reads http.Header carriers", func() {
			hdrs := http.Header{}
			hdrs.Set("traceparent", "00-"+w3cTrace+"-"+w3cSpan+"-01")
			ctx := core.Extract(context.Background(), core.TraceContext(), hdrs, core.HeaderGetter)
			Ω(core.SpanContextFromContext(ctx).TraceID().String()).Should(Equal(w3cTrace))
		})
	})
})
