package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/Nordstrom/ctrace-pipeline/ext"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	"go.opentelemetry.io/otel/codes"
)

type clientInstrumenter = instrumenter.Instrumenter[*http.Request, *http.Response]

type tracedTransport struct {
	inst      *clientInstrumenter
	transport http.RoundTripper
}

// NewTracedTransport creates a new Transporter (http.RoundTripper) that intercepts
// and traces egress requests. A nil t uses http.DefaultTransport.
func NewTracedTransport(t http.RoundTripper, options ...Option) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	opts := newOptions("ctrace.TracedTransport", func(r *http.Request) string {
		return r.Method + ":" + r.URL.Path
	}, options)

	inst := newBuilder[*http.Response](opts,
		clientAttributes(),
		instrumenter.NewHeaderCaptureExtractor[*http.Request, *http.Response](opts.config, requestHeaders, responseHeaders),
	).
		SetSpanStatusExtractor(clientStatus).
		BuildClientInstrumenter(requestCarrier{})

	return &tracedTransport{inst: inst, transport: t}
}

func clientAttributes() instrumenter.AttributesExtractor[*http.Request, *http.Response] {
	return instrumenter.NewAttributesExtractor[*http.Request, *http.Response](
		func(attrs *instrumenter.AttributesBuilder, _ context.Context, r *http.Request) {
			attrs.Put(ext.HTTPMethod(r.Method), ext.HTTPUrl(r.URL.String()))
			name, port := peer(r)
			attrs.PutString(ext.PeerHostnameKey, name)
			if port > 0 {
				attrs.Put(ext.PeerPort(port))
			}
		},
		func(attrs *instrumenter.AttributesBuilder, _ context.Context, _ *http.Request, res *http.Response, _ error) {
			if res != nil {
				attrs.Put(ext.HTTPStatusCode(res.StatusCode))
			}
		})
}

func responseHeaders(res *http.Response, name string) []string {
	if res == nil {
		return nil
	}
	return res.Header.Values(name)
}

func clientStatus(_ *http.Request, res *http.Response, err error) (codes.Code, string) {
	if err != nil {
		return codes.Error, err.Error()
	}
	if res != nil && res.StatusCode >= 400 {
		return codes.Error, "HTTP " + strconv.Itoa(res.StatusCode)
	}
	return codes.Unset, ""
}

// closeTracker ends the span once the response body is closed.
type closeTracker struct {
	io.ReadCloser
	once sync.Once
	end  func(err error)
}

func (c *closeTracker) Close() error {
	err := c.ReadCloser.Close()
	c.once.Do(func() { c.end(err) })
	return err
}

func (t *tracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if !t.inst.ShouldStart(ctx, req) {
		return t.transport.RoundTrip(req)
	}

	// A RoundTripper must not modify the caller's request.
	req = req.Clone(ctx)
	ctx = t.inst.Start(ctx, req)
	req = req.WithContext(ctx)

	res, err := t.transport.RoundTrip(req)
	if err != nil {
		t.inst.End(ctx, req, res, err)
		return res, err
	}

	if req.Method == http.MethodHead || res.Body == nil || res.Body == http.NoBody {
		t.inst.End(ctx, req, res, nil)
	} else {
		res.Body = &closeTracker{ReadCloser: res.Body, end: func(err error) {
			t.inst.End(ctx, req, res, err)
		}}
	}
	return res, nil
}
