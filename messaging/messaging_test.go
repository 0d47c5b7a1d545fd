package messaging_test

import (
	"context"
	"errors"
	"sync"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	"github.com/Nordstrom/ctrace-pipeline/messaging"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type collector struct {
	sync.Mutex
	spans []core.Span
}

func (c *collector) add(sp core.Span) {
	c.Lock()
	defer c.Unlock()
	c.spans = append(c.spans, sp)
}

func (c *collector) byKind(kind trace.SpanKind) []core.Span {
	c.Lock()
	defer c.Unlock()
	var out []core.Span
	for _, sp := range c.spans {
		if sp.Kind() == kind {
			out = append(out, sp)
		}
	}
	return out
}

var _ = Describe("Messaging", func() {
	var (
		col   *collector
		trc   core.Tracer
		queue chan *messaging.Message
	)

	BeforeEach(func() {
		col = &collector{}
		trc = core.NewWithOptions(core.TracerOptions{
			Writer:         &core.Buffer{},
			OnSpanComplete: col.add,
		})
		queue = make(chan *messaging.Message, 10)
	})

	send := func(_ context.Context, m *messaging.Message) error {
		queue <- m
		return nil
	}

	It("links the consumer span to the producer span", func() {
		pub := messaging.NewPublisher(send, messaging.WithTracer(trc), messaging.WithSystem("rabbitmq"))
		msg := &messaging.Message{Destination: "orders", Body: []byte("hello")}
		Ω(pub.Publish(context.Background(), msg)).Should(Succeed())

		producers := col.byKind(trace.SpanKindProducer)
		Ω(producers).Should(HaveLen(1))
		producer := producers[0]
		Ω(producer.Name()).Should(Equal("orders publish"))
		v, _ := producer.Attribute("messaging.system")
		Ω(v.AsString()).Should(Equal("rabbitmq"))
		v, _ = producer.Attribute("messaging.message.body.size")
		Ω(v.AsInt64()).Should(Equal(int64(5)))
		Ω(msg.Headers).Should(HaveKey("traceparent"))

		var handled context.Context
		con := messaging.NewConsumer(func(ctx context.Context, m *messaging.Message) error {
			handled = ctx
			return nil
		}, messaging.WithTracer(trc))
		Ω(con.Deliver(context.Background(), <-queue)).Should(Succeed())

		consumers := col.byKind(trace.SpanKindConsumer)
		Ω(consumers).Should(HaveLen(1))
		consumer := consumers[0]
		Ω(consumer.Name()).Should(Equal("orders process"))
		Ω(consumer.RawContext().TraceID()).Should(Equal(producer.RawContext().TraceID()))
		Ω(consumer.ParentSpanID()).Should(Equal(producer.RawContext().SpanID()))
		Ω(core.SpanFromContext(handled)).Should(Equal(consumer))
	})

	It("records one span for nested publishes", func() {
		inner := messaging.NewPublisher(send, messaging.WithTracer(trc))
		outer := messaging.NewPublisher(func(_ context.Context, m *messaging.Message) error {
			return inner.Publish(context.Background(), m)
		}, messaging.WithTracer(trc))

		Ω(outer.Publish(context.Background(), &messaging.Message{Destination: "q"})).Should(Succeed())
		Ω(col.byKind(trace.SpanKindProducer)).Should(HaveLen(1))
		Ω(queue).Should(HaveLen(1))
	})

	It("records handler errors", func() {
		con := messaging.NewConsumer(func(context.Context, *messaging.Message) error {
			return errors.New("rejected")
		}, messaging.WithTracer(trc))

		err := con.Deliver(context.Background(), &messaging.Message{Destination: "q"})
		Ω(err).Should(MatchError("rejected"))

		code, desc := col.byKind(trace.SpanKindConsumer)[0].Status()
		Ω(code).Should(Equal(codes.Error))
		Ω(desc).Should(Equal("rejected"))
	})

	It("keeps the consumer context with the message", func() {
		con := messaging.NewConsumer(func(context.Context, *messaging.Message) error { return nil },
			messaging.WithTracer(trc))
		msg := &messaging.Message{Destination: "q", Headers: map[string]interface{}{
			"traceparent": []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"),
		}}

		Ω(messaging.ContextOf(msg)).Should(Equal(context.Background()))
		Ω(con.Deliver(context.Background(), msg)).Should(Succeed())

		sp := core.SpanFromContext(messaging.ContextOf(msg))
		Ω(sp).ShouldNot(BeNil())
		Ω(sp.ParentSpanID().String()).Should(Equal("00f067aa0ba902b7"))
		Ω(sp.IsEnded()).Should(BeTrue())
	})

	It("does nothing when disabled", func() {
		cfg := instrumenter.DefaultConfig()
		cfg.Enabled = false
		pub := messaging.NewPublisher(send, messaging.WithTracer(trc), messaging.WithConfig(cfg))
		Ω(pub.Publish(context.Background(), &messaging.Message{Destination: "q"})).Should(Succeed())
		Ω(col.byKind(trace.SpanKindProducer)).Should(BeEmpty())
		_, ok := (<-queue).Headers["traceparent"]
		Ω(ok).Should(BeFalse())
	})

	It("records the destination attribute", func() {
		pub := messaging.NewPublisher(send, messaging.WithTracer(trc))
		Ω(pub.Publish(context.Background(), &messaging.Message{Destination: "billing"})).Should(Succeed())
		v, ok := col.byKind(trace.SpanKindProducer)[0].Attribute(attribute.Key("messaging.destination.name"))
		Ω(ok).Should(BeTrue())
		Ω(v.AsString()).Should(Equal("billing"))
	})
})
