// Package ctrace instruments Go services with spans.
//
// A process sets up one global tracer with Init or InitFromConfig. The
// http and messaging packages wrap clients, servers, publishers and
// consumers in instrumenters that start and end spans around each call,
// propagate span contexts over the wire and suppress nested spans of the
// same kind. The scope and concurrent packages carry the active span across
// goroutines.
//
// Spans are written to stdout as canonical JSON trace logs by default; see
// reporter/zipkin for Zipkin export.
package ctrace
