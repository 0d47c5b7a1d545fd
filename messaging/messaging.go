package messaging

import (
	"context"

	"github.com/Nordstrom/ctrace-pipeline/calldepth"
	"github.com/Nordstrom/ctrace-pipeline/ext"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
)

const (
	operationPublish = "publish"
	operationProcess = "process"
)

// SendFunc hands a message to the broker.
type SendFunc func(ctx context.Context, msg *Message) error

// HandlerFunc processes a delivered message.
type HandlerFunc func(ctx context.Context, msg *Message) error

func spanName(operation string) instrumenter.SpanNameExtractor[*Message] {
	return func(m *Message) string {
		dest := m.Destination
		if dest == "" {
			dest = "(anonymous)"
		}
		return dest + " " + operation
	}
}

func attributes(system, operation string) instrumenter.AttributesExtractor[*Message, struct{}] {
	return instrumenter.NewAttributesExtractor[*Message, struct{}](
		func(attrs *instrumenter.AttributesBuilder, _ context.Context, m *Message) {
			attrs.Put(
				ext.MessagingSystem(system),
				ext.MessagingOperation(operation),
				ext.MessagingBodySize(len(m.Body)),
			)
			attrs.PutString(ext.MessagingDestinationKey, m.Destination)
		}, nil)
}

func newBuilder(o options, operation string) *instrumenter.Builder[*Message, struct{}] {
	b := instrumenter.NewBuilder[*Message, struct{}](o.tracer, "ctrace.messaging", spanName(operation)).
		AddAttributesExtractors(attributes(o.system, operation)).
		AddOperationListeners(o.listeners...).
		SetConfig(o.config)
	if o.propagator != nil {
		b.SetPropagator(o.propagator)
	}
	return b
}

var publishKey = calldepth.ForType[Publisher]()

// Publisher traces outgoing messages as PRODUCER spans and injects the span
// context into their headers.
type Publisher struct {
	inst *instrumenter.Instrumenter[*Message, struct{}]
	send SendFunc
}

// NewPublisher wraps send.
func NewPublisher(send SendFunc, opts ...Option) *Publisher {
	o := newOptions(opts)
	return &Publisher{
		inst: newBuilder(o, operationPublish).BuildProducerInstrumenter(headerSetter),
		send: send,
	}
}

// Publish sends msg. A Publish nested in another Publish on the same
// goroutine, e.g. a publisher wrapping another, records no span of its own.
func (p *Publisher) Publish(ctx context.Context, msg *Message) error {
	if calldepth.Increment(publishKey) > 0 {
		defer calldepth.Decrement(publishKey)
		return p.send(ctx, msg)
	}
	defer calldepth.Reset(publishKey)

	_, err := instrumenter.Run(ctx, p.inst, msg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.send(ctx, msg)
	})
	return err
}

// Consumer traces delivered messages as CONSUMER spans whose parent is the
// span context found in the message headers.
type Consumer struct {
	inst    *instrumenter.Instrumenter[*Message, struct{}]
	handler HandlerFunc
}

// NewConsumer wraps handler.
func NewConsumer(handler HandlerFunc, opts ...Option) *Consumer {
	o := newOptions(opts)
	return &Consumer{
		inst:    newBuilder(o, operationProcess).BuildConsumerInstrumenter(headerGetter{}),
		handler: handler,
	}
}

// Deliver runs the handler for msg. The consumer context stays attached to
// msg and can be recovered later with ContextOf.
func (c *Consumer) Deliver(ctx context.Context, msg *Message) error {
	_, err := instrumenter.Run(ctx, c.inst, msg, func(ctx context.Context) (struct{}, error) {
		consumed.Set(msg, ctx)
		return struct{}{}, c.handler(ctx, msg)
	})
	return err
}
