// Package lambda traces AWS Lambda functions behind an API Gateway proxy
// integration.
package lambda

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/ext"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	"github.com/aws/aws-lambda-go/events"
	opentracing "github.com/opentracing/opentracing-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RequestIDKey holds the API Gateway request id.
const RequestIDKey = "aws.request_id"

// Handler is an API Gateway proxy handler as accepted by lambda.Start.
type Handler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

type options struct {
	opNameFunc func(req *events.APIGatewayProxyRequest) string
	tracer     core.Tracer
	config     instrumenter.Config
	propagator core.Propagator
	listeners  []instrumenter.OperationListener
}

// Option controls the behavior of TracedAPIGatewayProxy.
type Option func(*options)

// OperationNameFunc names each span with f.
func OperationNameFunc(f func(req *events.APIGatewayProxyRequest) string) Option {
	return func(o *options) {
		o.opNameFunc = f
	}
}

// WithTracer uses t instead of the global tracer.
func WithTracer(t core.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithConfig replaces instrumenter.DefaultConfig.
func WithConfig(c instrumenter.Config) Option {
	return func(o *options) {
		o.config = c
	}
}

// WithPropagator extracts with p instead of the tracer's propagator.
func WithPropagator(p core.Propagator) Option {
	return func(o *options) {
		o.propagator = p
	}
}

// WithOperationListener adds l to the instrumenter.
func WithOperationListener(l instrumenter.OperationListener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

// TracedAPIGatewayProxy wraps fn so every invocation is traced as a SERVER
// span named "METHOD:resource", e.g. "GET:/users/{id}", whose parent is the
// span context found in the request headers.
func TracedAPIGatewayProxy(fn Handler, opts ...Option) Handler {
	o := options{
		opNameFunc: func(req *events.APIGatewayProxyRequest) string {
			res := req.Resource
			if res == "" {
				res = req.Path
			}
			return req.HTTPMethod + ":" + res
		},
		config: instrumenter.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		if t, ok := opentracing.GlobalTracer().(core.Tracer); ok {
			o.tracer = t
		} else {
			o.tracer = core.New()
		}
	}

	b := instrumenter.NewBuilder[*events.APIGatewayProxyRequest, *events.APIGatewayProxyResponse](
		o.tracer, "ctrace.TracedAPIGatewayProxy", o.opNameFunc).
		AddAttributesExtractors(
			proxyAttributes(),
			instrumenter.NewHeaderCaptureExtractor[*events.APIGatewayProxyRequest, *events.APIGatewayProxyResponse](
				o.config, requestHeaders, responseHeaders),
		).
		SetSpanStatusExtractor(proxyStatus).
		AddOperationListeners(o.listeners...).
		SetConfig(o.config)
	if o.propagator != nil {
		b.SetPropagator(o.propagator)
	}
	inst := b.BuildServerInstrumenter(headerCarrier{})

	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		var out events.APIGatewayProxyResponse
		_, err := instrumenter.Run(ctx, inst, &req,
			func(ctx context.Context) (*events.APIGatewayProxyResponse, error) {
				var err error
				out, err = fn(ctx, req)
				return &out, err
			})
		return out, err
	}
}

func proxyAttributes() instrumenter.AttributesExtractor[*events.APIGatewayProxyRequest, *events.APIGatewayProxyResponse] {
	return instrumenter.NewAttributesExtractor(
		func(attrs *instrumenter.AttributesBuilder, _ context.Context, req *events.APIGatewayProxyRequest) {
			attrs.Put(
				ext.HTTPMethod(req.HTTPMethod),
				ext.HTTPUrl(req.Path),
				ext.HTTPRemoteAddr(req.RequestContext.Identity.SourceIP),
				ext.HTTPUserAgent(req.RequestContext.Identity.UserAgent),
			)
			if req.Resource != "" {
				attrs.Put(ext.HTTPRoute(req.Resource))
			}
			if id := req.RequestContext.RequestID; id != "" {
				attrs.Put(attribute.String(RequestIDKey, id))
			}
		},
		func(attrs *instrumenter.AttributesBuilder, _ context.Context, _ *events.APIGatewayProxyRequest, res *events.APIGatewayProxyResponse, _ error) {
			if res != nil && res.StatusCode != 0 {
				attrs.Put(ext.HTTPStatusCode(res.StatusCode))
			}
		})
}

func proxyStatus(_ *events.APIGatewayProxyRequest, res *events.APIGatewayProxyResponse, err error) (codes.Code, string) {
	if err != nil {
		return codes.Error, err.Error()
	}
	if res != nil && res.StatusCode >= 400 {
		return codes.Error, "HTTP " + strconv.Itoa(res.StatusCode)
	}
	return codes.Unset, ""
}

// headerCarrier reads API Gateway headers, which keep the caller's casing.
type headerCarrier struct{}

func (headerCarrier) Get(req *events.APIGatewayProxyRequest, key string) string {
	if vs := requestHeaders(req, key); len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (headerCarrier) Keys(req *events.APIGatewayProxyRequest) []string {
	seen := map[string]bool{}
	for k := range req.Headers {
		seen[strings.ToLower(k)] = true
	}
	for k := range req.MultiValueHeaders {
		seen[strings.ToLower(k)] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func requestHeaders(req *events.APIGatewayProxyRequest, name string) []string {
	return lookup(req.Headers, req.MultiValueHeaders, name)
}

func responseHeaders(res *events.APIGatewayProxyResponse, name string) []string {
	if res == nil {
		return nil
	}
	return lookup(res.Headers, res.MultiValueHeaders, name)
}

func lookup(single map[string]string, multi map[string][]string, name string) []string {
	for k, vs := range multi {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs
		}
	}
	for k, v := range single {
		if strings.EqualFold(k, name) {
			return []string{v}
		}
	}
	return nil
}
