// Package messaging traces publishing and consuming of broker messages.
// The span context travels in the message headers.
package messaging

import (
	"context"
	"fmt"
	"sort"

	"github.com/Nordstrom/ctrace-pipeline/core"
	"github.com/Nordstrom/ctrace-pipeline/field"
)

// Message is a broker message. Header values are strings or byte slices
// on the wire; other types are formatted with fmt.
type Message struct {
	Destination string
	Headers     map[string]interface{}
	Body        []byte
}

var headerSetter = core.SetterFunc[*Message](func(m *Message, key, value string) {
	if m.Headers == nil {
		m.Headers = map[string]interface{}{}
	}
	m.Headers[key] = value
})

type headerGetter struct{}

func (headerGetter) Get(m *Message, key string) string {
	switch v := m.Headers[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (headerGetter) Keys(m *Message) []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// consumed holds the context each message was delivered under.
var consumed = field.New[Message, context.Context]()

// ContextOf returns the context msg was consumed under, so processing that
// happens after Deliver returns can continue the consumer's trace. It is
// context.Background for messages that were never delivered.
func ContextOf(msg *Message) context.Context {
	if ctx, ok := consumed.Get(msg); ok {
		return ctx
	}
	return context.Background()
}
