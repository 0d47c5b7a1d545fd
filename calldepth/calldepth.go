// Package calldepth counts re-entrant calls per goroutine so that only the
// outermost of several nested instrumented calls creates a span.
//
//	if calldepth.Increment(key) > 0 {
//		defer calldepth.Decrement(key)
//		return next()
//	}
//	defer calldepth.Reset(key)
package calldepth

import (
	"reflect"
	"sync"

	"github.com/Nordstrom/ctrace-pipeline/internal/goid"
	godebug "github.com/tj/go-debug"
)

var debug = godebug.Debug("ctrace:calldepth")

// counters are only touched by the goroutine that owns them.
type counters map[interface{}]int

var goroutines sync.Map // uint64 -> counters

func load(gid uint64, create bool) counters {
	if c, ok := goroutines.Load(gid); ok {
		return c.(counters)
	}
	if !create {
		return nil
	}
	c := counters{}
	goroutines.Store(gid, c)
	return c
}

func release(gid uint64, c counters, key interface{}) {
	delete(c, key)
	if len(c) == 0 {
		goroutines.Delete(gid)
	}
}

func increment(gid uint64, key interface{}) int {
	c := load(gid, true)
	d := c[key]
	c[key] = d + 1
	return d
}

func decrement(gid uint64, key interface{}) int {
	c := load(gid, false)
	d := c[key] - 1
	if d < 0 {
		debug("unbalanced decrement of %v on goroutine %d", key, gid)
		d = 0
	}
	if d == 0 {
		if c != nil {
			release(gid, c, key)
		}
		return 0
	}
	c[key] = d
	return d
}

// Increment raises the calling goroutine's depth for key and returns the
// depth before the call. Zero means this is the outermost call.
func Increment(key interface{}) int {
	return increment(goid.Current(), key)
}

// Decrement lowers the calling goroutine's depth for key and returns the
// depth after the call. It never goes below zero.
func Decrement(key interface{}) int {
	return decrement(goid.Current(), key)
}

// Reset drops the calling goroutine's depth for key back to zero.
func Reset(key interface{}) {
	gid := goid.Current()
	if c := load(gid, false); c != nil {
		release(gid, c, key)
	}
}

// Depth returns the calling goroutine's current depth for key.
func Depth(key interface{}) int {
	return load(goid.Current(), false)[key]
}

// ForType returns a key shared by every call site guarding T.
func ForType[T any]() interface{} {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// CallDepth is a counter for one key bound to the goroutine that created
// it. It must not be shared with other goroutines.
type CallDepth struct {
	key interface{}
	gid uint64
}

// For returns the calling goroutine's counter for key.
func For(key interface{}) *CallDepth {
	return &CallDepth{key: key, gid: goid.Current()}
}

// GetAndIncrement returns the depth and then raises it.
func (d *CallDepth) GetAndIncrement() int {
	return increment(d.gid, d.key)
}

// DecrementAndGet lowers the depth and returns the new value.
func (d *CallDepth) DecrementAndGet() int {
	return decrement(d.gid, d.key)
}

// Get returns the current depth.
func (d *CallDepth) Get() int {
	return load(d.gid, false)[d.key]
}

// Reset drops the depth back to zero.
func (d *CallDepth) Reset() {
	if c := load(d.gid, false); c != nil {
		release(d.gid, c, d.key)
	}
}
