// Package log holds the field helpers for span log records written by the
// tracer and the adapters.
package log

import "github.com/opentracing/opentracing-go/log"

// Event names the tracer writes.
const (
	EventStartSpan  = "Start-Span"
	EventFinishSpan = "Finish-Span"
	EventError      = "error"
)

var (
	// ErrorKind is the type or "kind" of an error (only for event="error" logs).
	// E.g., "Exception", "OSError"
	ErrorKind = stringLogName("error.kind")

	// ErrorObject for the actual error instance itself.
	ErrorObject = errorLogName("error.object")

	// Event is a stable identifier for some notable moment in the lifetime of a Span.
	// E.g. "Start-Span", "Finish-Span" or, for errors, "error".
	Event = stringLogName("event")

	// Message a concise, human-readable, one-line message explaining the event.
	// E.g., "Could not connect to backend", "Cache invalidation succeeded"
	Message = stringLogName("message")

	// Stack a stack trace in platform-conventional format; may or may not pertain
	// to an error.
	Stack = stringLogName("stack")
)

// Error returns the fields of an "error" event.
func Error(kind string, err error) []log.Field {
	return []log.Field{Event(EventError), ErrorKind(kind), ErrorObject(err)}
}

func stringLogName(k string) func(string) log.Field {
	return func(v string) log.Field {
		return log.String(k, v)
	}
}

func errorLogName(k string) func(error) log.Field {
	return func(v error) log.Field {
		if v == nil {
			return log.String(k, "")
		}
		return log.String(k, v.Error())
	}
}
