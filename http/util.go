package http

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Nordstrom/ctrace-pipeline/core"
)

// remoteAddrHeaders are consulted in order before the connection address.
var remoteAddrHeaders = []string{
	"Http-Client-Id",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-Ip",
	"Forwarded-For",
	"Forwarded",
	"Remote-Addr",
}

func httpRemoteAddr(r *http.Request) string {
	for _, h := range remoteAddrHeaders {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return r.RemoteAddr
}

// peer splits the request host into name and port, defaulting the port from the
// scheme.
func peer(r *http.Request) (string, int) {
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	name, p, err := net.SplitHostPort(host)
	if err != nil {
		name = strings.Trim(host, "[]")
		switch r.URL.Scheme {
		case "https":
			return name, 443
		case "http":
			return name, 80
		}
		return name, 0
	}
	port, _ := strconv.Atoi(p)
	return name, port
}

type requestCarrier struct{}

func (requestCarrier) Set(r *http.Request, key, value string) { r.Header.Set(key, value) }
func (requestCarrier) Get(r *http.Request, key string) string { return r.Header.Get(key) }
func (requestCarrier) Keys(r *http.Request) []string {
	return core.HTTPHeadersCarrier(r.Header).Keys()
}

func requestHeaders(r *http.Request, name string) []string {
	return r.Header.Values(name)
}
