// Package field attaches values to objects the instrumentation does not own,
// e.g. the context a message was consumed under. Entries are keyed weakly
// and vanish once the owner is garbage collected.
package field

import (
	"runtime"
	"sync"
	"weak"
)

type entry[V any] struct {
	value   V
	cleanup runtime.Cleanup
}

// VirtualField maps owners of type *K to values of type V. A value must not
// reference its owner, otherwise the owner is never collected.
type VirtualField[K, V any] struct {
	mu      sync.Mutex
	entries map[weak.Pointer[K]]entry[V]
}

// New returns an empty field.
func New[K, V any]() *VirtualField[K, V] {
	return &VirtualField[K, V]{entries: map[weak.Pointer[K]]entry[V]{}}
}

// Get returns the value attached to owner.
func (f *VirtualField[K, V]) Get(owner *K) (V, bool) {
	var zero V
	if owner == nil {
		return zero, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[weak.Make(owner)]
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Set attaches value to owner, replacing any previous value.
func (f *VirtualField[K, V]) Set(owner *K, value V) {
	if owner == nil {
		return
	}
	wp := weak.Make(owner)
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[wp]; ok {
		e.value = value
		f.entries[wp] = e
		return
	}
	f.entries[wp] = entry[V]{
		value:   value,
		cleanup: runtime.AddCleanup(owner, f.drop, wp),
	}
}

// Remove detaches owner's value.
func (f *VirtualField[K, V]) Remove(owner *K) {
	if owner == nil {
		return
	}
	wp := weak.Make(owner)
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[wp]; ok {
		e.cleanup.Stop()
		delete(f.entries, wp)
	}
}

// Len returns the number of live entries.
func (f *VirtualField[K, V]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

func (f *VirtualField[K, V]) drop(wp weak.Pointer[K]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, wp)
}
