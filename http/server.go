package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/ext"
	"github.com/Nordstrom/ctrace-pipeline/instrumenter"
	log "github.com/Nordstrom/ctrace-pipeline/log"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	olog "github.com/opentracing/opentracing-go/log"
	"go.opentelemetry.io/otel/codes"
)

// maxLoggedBody caps the error response body logged on server spans.
const maxLoggedBody = 1024

// response is what the handler wrote. body holds at most maxLoggedBody bytes
// and only for error statuses.
type response struct {
	status int
	header http.Header
	body   []byte
}

type serverInstrumenter = instrumenter.Instrumenter[*http.Request, *response]

// TracedHandler returns a http.Handler that is traced as a SERVER span whose
// parent is the span context found in the request headers.
func TracedHandler(h http.Handler, options ...Option) http.Handler {
	serveMux, muxFound := h.(*http.ServeMux)
	opts := newOptions("ctrace.TracedHandler", func(r *http.Request) string {
		if muxFound {
			_, pattern := serveMux.Handler(r)
			return r.Method + ":" + pattern
		}
		return r.Method + ":" + r.URL.Path
	}, options)

	inst := newBuilder[*response](opts,
		serverAttributes(),
		instrumenter.NewHeaderCaptureExtractor[*http.Request, *response](opts.config, requestHeaders,
			func(res *response, name string) []string {
				if res == nil {
					return nil
				}
				return res.header.Values(name)
			}),
	).
		SetSpanStatusExtractor(serverStatus).
		BuildServerInstrumenter(requestCarrier{})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serve(inst, h, w, r)
	})
}

// TracedHandlerFunc returns a http.HandlerFunc that is traced as a SERVER span.
func TracedHandlerFunc(fn func(http.ResponseWriter, *http.Request), options ...Option) http.HandlerFunc {
	return TracedHandler(http.HandlerFunc(fn), options...).ServeHTTP
}

// Middleware traces gorilla/mux routes, naming each span after the matched
// route template, e.g. "GET:/users/{id}".
func Middleware(options ...Option) mux.MiddlewareFunc {
	opts := append([]Option{OperationNameFunc(routeName)}, options...)
	return func(next http.Handler) http.Handler {
		return TracedHandler(next, opts...)
	}
}

func routeName(r *http.Request) string {
	if tmpl := routeTemplate(r); tmpl != "" {
		return r.Method + ":" + tmpl
	}
	return r.Method + ":" + r.URL.Path
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tmpl
}

func serverAttributes() instrumenter.AttributesExtractor[*http.Request, *response] {
	return instrumenter.NewAttributesExtractor[*http.Request, *response](
		func(attrs *instrumenter.AttributesBuilder, _ context.Context, r *http.Request) {
			attrs.Put(ext.HTTPMethod(r.Method), ext.HTTPUrl(r.URL.String()))
			attrs.PutString(ext.HTTPRemoteAddrKey, httpRemoteAddr(r))
			attrs.PutString(ext.HTTPUserAgentKey, r.UserAgent())
			attrs.PutString(ext.HTTPRouteKey, routeTemplate(r))
		},
		func(attrs *instrumenter.AttributesBuilder, _ context.Context, _ *http.Request, res *response, _ error) {
			if res != nil {
				attrs.Put(ext.HTTPStatusCode(res.status))
			}
		})
}

func serverStatus(_ *http.Request, res *response, err error) (codes.Code, string) {
	if err != nil {
		return codes.Error, err.Error()
	}
	if res != nil && res.status >= 400 {
		return codes.Error, "HTTP " + strconv.Itoa(res.status)
	}
	return codes.Unset, ""
}

func serve(inst *serverInstrumenter, h http.Handler, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !inst.ShouldStart(ctx, r) {
		h.ServeHTTP(w, r)
		return
	}
	ctx = inst.Start(ctx, r)

	var (
		res           = &response{status: http.StatusOK, header: w.Header()}
		headerWritten = false
		lock          sync.Mutex
		hooks         = httpsnoop.Hooks{
			WriteHeader: func(fn httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					fn(code)
					lock.Lock()
					defer lock.Unlock()
					if !headerWritten {
						res.status = code
						headerWritten = true
					}
				}
			},
			Write: func(fn httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(bytes []byte) (int, error) {
					n, err := fn(bytes)
					lock.Lock()
					defer lock.Unlock()
					headerWritten = true
					if room := maxLoggedBody - len(res.body); res.status >= 400 && room > 0 {
						if len(bytes) > room {
							bytes = bytes[:room]
						}
						res.body = append(res.body, bytes...)
					}
					return n, err
				}
			},
		}
	)

	defer func() {
		if p := recover(); p != nil {
			lock.Lock()
			if !headerWritten {
				res.status = http.StatusInternalServerError
			}
			lock.Unlock()
			inst.End(ctx, r, res, instrumenter.PanicError(p))
			panic(p)
		}
	}()

	h.ServeHTTP(httpsnoop.Wrap(w, hooks), r.WithContext(ctx))

	lock.Lock()
	defer lock.Unlock()
	if res.status >= 400 {
		if sp := core.SpanFromContext(ctx); sp != nil {
			sp.LogFields(
				log.Event(log.EventError),
				log.ErrorKind("http-server"),
				olog.String("http.response.body", string(res.body)),
			)
		}
	}
	inst.End(ctx, r, res, nil)
}
