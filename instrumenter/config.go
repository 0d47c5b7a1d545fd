package instrumenter

import "strings"

// Config controls one instrumenter.
type Config struct {
	// Enabled turns span creation on. A disabled instrumenter never starts.
	Enabled bool `yaml:"enabled"`

	// CapturedRequestHeaders lists request headers recorded as
	// http.request.header.<name> attributes.
	CapturedRequestHeaders []string `yaml:"capturedRequestHeaders"`

	// CapturedResponseHeaders lists response headers recorded as
	// http.response.header.<name> attributes.
	CapturedResponseHeaders []string `yaml:"capturedResponseHeaders"`

	// SuppressNestedSpans skips a client, server, producer or consumer span
	// when the parent context already holds a span of the same kind.
	SuppressNestedSpans bool `yaml:"suppressNestedSpans"`
}

// DefaultConfig is enabled with nested span suppression and no captured
// headers.
func DefaultConfig() Config {
	return Config{Enabled: true, SuppressNestedSpans: true}
}

func lowerAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			out = append(out, n)
		}
	}
	return out
}
