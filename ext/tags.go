// Package ext names the span attributes recorded by the adapters and
// offers constructors for them, plus OpenTracing tag forms for code that
// starts spans through the OpenTracing API.
package ext

import (
	opentracing "github.com/opentracing/opentracing-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys (and values) for standard and recommended attributes.
const (
	// SpanKindKey is the SpanKind tag key
	SpanKindKey = "span.kind"

	// SpanKindClientValue is the SpanKindClient tag value
	SpanKindClientValue = "client"

	// SpanKindServerValue is the SpanKindServer tag value
	SpanKindServerValue = "server"

	// SpanKindProducerValue is the SpanKindProducer tag value
	SpanKindProducerValue = "producer"

	// SpanKindConsumerValue is the SpanKindConsumer tag value
	SpanKindConsumerValue = "consumer"

	// ComponentKey is the key for a low-cardinality identifier of the module,
	// library, or package that is generating a span.
	ComponentKey = "component"

	// ServiceKey names the service that recorded the span.
	ServiceKey = "service"

	//////////////////////////////////////////////////////////////////////
	// Peer keys
	//////////////////////////////////////////////////////////////////////

	// PeerServiceKey is the key for the service name of the peer
	PeerServiceKey = "peer.service"

	// PeerHostnameKey is the key for the host name of the peer
	PeerHostnameKey = "peer.hostname"

	// PeerPortKey is the key for the port number of the peer
	PeerPortKey = "peer.port"

	//////////////////////////////////////////////////////////////////////
	// HTTP keys
	//////////////////////////////////////////////////////////////////////

	// HTTPUrlKey is the URL of the request being handled in this segment of
	// the trace, in standard URI format. The protocol is optional.
	HTTPUrlKey = "http.url"

	// HTTPMethodKey is the HTTP method of the request.
	HTTPMethodKey = "http.method"

	// HTTPStatusCodeKey is the numeric HTTP status code (200, 404, etc) of the
	// HTTP response.
	HTTPStatusCodeKey = "http.status_code"

	// HTTPRouteKey is the matched route template, e.g. "/users/{id}".
	HTTPRouteKey = "http.route"

	// HTTPRemoteAddrKey is the X-Forwarded-For header or client IP of the caller
	HTTPRemoteAddrKey = "http.remote_addr"

	// HTTPUserAgentKey is the key for the UserAgent attribute
	HTTPUserAgentKey = "http.user_agent"

	//////////////////////////////////////////////////////////////////////
	// Messaging keys
	//////////////////////////////////////////////////////////////////////

	// MessagingSystemKey identifies the broker, e.g. "rabbitmq".
	MessagingSystemKey = "messaging.system"

	// MessagingDestinationKey is the queue or topic a message is sent to.
	MessagingDestinationKey = "messaging.destination.name"

	// MessagingOperationKey is "publish" or "process".
	MessagingOperationKey = "messaging.operation"

	// MessagingBodySizeKey is the payload size in bytes.
	MessagingBodySizeKey = "messaging.message.body.size"

	// ErrorKey marks a span whose operation failed.
	ErrorKey = "error"
)

var (
	// SpanKindClient hints at client relationship between spans
	SpanKindClient = spanKindTag(SpanKindClientValue)

	// SpanKindServer hints at server relationship between spans
	SpanKindServer = spanKindTag(SpanKindServerValue)

	// SpanKindProducer marks the sending side of a message
	SpanKindProducer = spanKindTag(SpanKindProducerValue)

	// SpanKindConsumer marks the receiving side of a message
	SpanKindConsumer = spanKindTag(SpanKindConsumerValue)

	// Component is a low-cardinality identifier of the module, library,
	// or package that is generating a span.
	Component = stringAttr(ComponentKey)

	// PeerService records the service name of the peer
	PeerService = stringAttr(PeerServiceKey)

	// PeerHostname records the host name of the peer
	PeerHostname = stringAttr(PeerHostnameKey)

	// PeerPort records port number of the peer
	PeerPort = intAttr(PeerPortKey)

	// HTTPUrl should be the URL of the request being handled in this segment
	// of the trace, in standard URI format. The protocol is optional.
	HTTPUrl = stringAttr(HTTPUrlKey)

	// HTTPMethod is the HTTP method of the request.
	HTTPMethod = stringAttr(HTTPMethodKey)

	// HTTPStatusCode is the numeric HTTP status code (200, 404, etc) of the
	// HTTP response.
	HTTPStatusCode = intAttr(HTTPStatusCodeKey)

	// HTTPRoute is the matched route template.
	HTTPRoute = stringAttr(HTTPRouteKey)

	// HTTPRemoteAddr is the X-Forwarded-For header or Client IP
	HTTPRemoteAddr = stringAttr(HTTPRemoteAddrKey)

	// HTTPUserAgent is the caller's User-Agent header
	HTTPUserAgent = stringAttr(HTTPUserAgentKey)

	MessagingSystem      = stringAttr(MessagingSystemKey)
	MessagingDestination = stringAttr(MessagingDestinationKey)
	MessagingOperation   = stringAttr(MessagingOperationKey)
	MessagingBodySize    = intAttr(MessagingBodySizeKey)

	// Error indicates that operation represented by the span resulted in an error.
	Error = boolAttr(ErrorKey)
)

// Tag converts an attribute into an OpenTracing start option.
func Tag(kv attribute.KeyValue) opentracing.Tag {
	return opentracing.Tag{Key: string(kv.Key), Value: kv.Value.AsInterface()}
}

// SpanKindValue returns the span.kind tag value for kind, or "" for
// internal and unspecified spans.
func SpanKindValue(kind trace.SpanKind) string {
	switch kind {
	case trace.SpanKindClient:
		return SpanKindClientValue
	case trace.SpanKindServer:
		return SpanKindServerValue
	case trace.SpanKindProducer:
		return SpanKindProducerValue
	case trace.SpanKindConsumer:
		return SpanKindConsumerValue
	}
	return ""
}

func spanKindTag(v string) func() opentracing.Tag {
	return func() opentracing.Tag {
		return opentracing.Tag{Key: SpanKindKey, Value: v}
	}
}

func stringAttr(k string) func(string) attribute.KeyValue {
	return func(v string) attribute.KeyValue {
		return attribute.String(k, v)
	}
}

func intAttr(k string) func(int) attribute.KeyValue {
	return func(v int) attribute.KeyValue {
		return attribute.Int(k, v)
	}
}

func boolAttr(k string) func(bool) attribute.KeyValue {
	return func(v bool) attribute.KeyValue {
		return attribute.Bool(k, v)
	}
}
