package core

import (
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/opentracing/opentracing-go/log"
	"go.opentelemetry.io/otel/attribute"
)

const _hex = "0123456789abcdef"

// appendKey writes "key": and the separating comma when bytes already holds
// a member of the enclosing object.
func appendKey(bytes []byte, key string) []byte {
	if last := len(bytes) - 1; last >= 0 && bytes[last] != '{' && bytes[last] != '[' {
		bytes = append(bytes, ',')
	}
	bytes = appendString(bytes, key)
	return append(bytes, ':')
}

func appendMember(bytes []byte, key string, v attribute.Value) []byte {
	return appendValue(appendKey(bytes, key), v)
}

func appendStringMember(bytes []byte, key, val string) []byte {
	return appendString(appendKey(bytes, key), val)
}

func appendIntMember(bytes []byte, key string, i int64) []byte {
	return strconv.AppendInt(appendKey(bytes, key), i, 10)
}

// appendValue writes v as its JSON counterpart. Slices become arrays and an
// invalid value becomes null.
func appendValue(bytes []byte, v attribute.Value) []byte {
	switch v.Type() {
	case attribute.BOOL:
		return strconv.AppendBool(bytes, v.AsBool())
	case attribute.INT64:
		return strconv.AppendInt(bytes, v.AsInt64(), 10)
	case attribute.FLOAT64:
		return appendFloat(bytes, v.AsFloat64())
	case attribute.STRING:
		return appendString(bytes, v.AsString())
	case attribute.BOOLSLICE:
		return appendArray(bytes, v.AsBoolSlice(), strconv.AppendBool)
	case attribute.INT64SLICE:
		return appendArray(bytes, v.AsInt64Slice(), func(b []byte, i int64) []byte {
			return strconv.AppendInt(b, i, 10)
		})
	case attribute.FLOAT64SLICE:
		return appendArray(bytes, v.AsFloat64Slice(), appendFloat)
	case attribute.STRINGSLICE:
		return appendArray(bytes, v.AsStringSlice(), appendString)
	}
	return append(bytes, "null"...)
}

func appendArray[T any](bytes []byte, vals []T, each func([]byte, T) []byte) []byte {
	bytes = append(bytes, '[')
	for i, v := range vals {
		if i > 0 {
			bytes = append(bytes, ',')
		}
		bytes = each(bytes, v)
	}
	return append(bytes, ']')
}

// appendFloat writes NaN and the infinities as strings since JSON has no
// literal for them.
func appendFloat(bytes []byte, f float64) []byte {
	switch {
	case math.IsNaN(f):
		return appendString(bytes, "NaN")
	case math.IsInf(f, 1):
		return appendString(bytes, "+Inf")
	case math.IsInf(f, -1):
		return appendString(bytes, "-Inf")
	}
	return strconv.AppendFloat(bytes, f, 'f', -1, 64)
}

// appendString writes s quoted and JSON-escaped. Unlike encoding/json it does
// not escape HTML characters.
func appendString(bytes []byte, s string) []byte {
	bytes = append(bytes, '"')
	for i := 0; i < len(s); {
		if b := s[i]; b < utf8.RuneSelf {
			i++
			if 0x20 <= b && b != '\\' && b != '"' {
				bytes = append(bytes, b)
				continue
			}
			switch b {
			case '\\', '"':
				bytes = append(bytes, '\\', b)
			case '\n':
				bytes = append(bytes, '\\', 'n')
			case '\r':
				bytes = append(bytes, '\\', 'r')
			case '\t':
				bytes = append(bytes, '\\', 't')
			default:
				bytes = append(bytes, `\u00`...)
				bytes = append(bytes, _hex[b>>4], _hex[b&0xF])
			}
			continue
		}
		c, size := utf8.DecodeRuneInString(s[i:])
		if c == utf8.RuneError && size == 1 {
			bytes = append(bytes, `\ufffd`...)
			i++
			continue
		}
		bytes = append(bytes, s[i:i+size]...)
		i += size
	}
	return append(bytes, '"')
}

// fieldWriter appends log fields as object members. Objects go through the
// same conversion as span tags.
type fieldWriter struct {
	bytes []byte
}

var _ log.Encoder = (*fieldWriter)(nil)

func (w *fieldWriter) EmitString(key, value string) {
	w.bytes = appendStringMember(w.bytes, key, value)
}

func (w *fieldWriter) EmitBool(key string, value bool) {
	w.bytes = appendMember(w.bytes, key, attribute.BoolValue(value))
}

func (w *fieldWriter) EmitInt(key string, value int) {
	w.bytes = appendIntMember(w.bytes, key, int64(value))
}

func (w *fieldWriter) EmitInt32(key string, value int32) {
	w.bytes = appendIntMember(w.bytes, key, int64(value))
}

func (w *fieldWriter) EmitInt64(key string, value int64) {
	w.bytes = appendIntMember(w.bytes, key, value)
}

func (w *fieldWriter) EmitUint32(key string, value uint32) {
	w.bytes = appendIntMember(w.bytes, key, int64(value))
}

func (w *fieldWriter) EmitUint64(key string, value uint64) {
	w.bytes = strconv.AppendUint(appendKey(w.bytes, key), value, 10)
}

func (w *fieldWriter) EmitFloat32(key string, value float32) {
	w.bytes = appendFloat(appendKey(w.bytes, key), float64(value))
}

func (w *fieldWriter) EmitFloat64(key string, value float64) {
	w.bytes = appendFloat(appendKey(w.bytes, key), value)
}

func (w *fieldWriter) EmitObject(key string, value interface{}) {
	if value == nil {
		w.bytes = append(appendKey(w.bytes, key), "null"...)
		return
	}
	w.bytes = appendMember(w.bytes, key, attributeFromTag(key, value).Value)
}

func (w *fieldWriter) EmitLazyLogger(value log.LazyLogger) {
	value(w)
}
