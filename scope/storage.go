package scope

import (
	"context"
	"sync"

	"github.com/Nordstrom/ctrace-pipeline/internal/goid"
)

// Storage holds the current context.
type Storage interface {
	Get() context.Context
	Set(ctx context.Context)
}

type goroutineStorage struct {
	contexts sync.Map // uint64 -> context.Context
}

// NewGoroutineStorage returns storage keeping one current context per
// goroutine. It is the default.
func NewGoroutineStorage() Storage {
	return &goroutineStorage{}
}

func (s *goroutineStorage) Get() context.Context {
	if ctx, ok := s.contexts.Load(goid.Current()); ok {
		return ctx.(context.Context)
	}
	return nil
}

func (s *goroutineStorage) Set(ctx context.Context) {
	gid := goid.Current()
	if ctx == nil {
		s.contexts.Delete(gid)
		return
	}
	s.contexts.Store(gid, ctx)
}

type slotStorage struct {
	sync.Mutex
	ctx context.Context
}

// NewSlotStorage returns storage with a single current context shared by
// all goroutines, for runtimes that multiplex logical tasks on their own
// scheduler and switch the slot themselves.
func NewSlotStorage() Storage {
	return &slotStorage{}
}

func (s *slotStorage) Get() context.Context {
	s.Lock()
	defer s.Unlock()
	return s.ctx
}

func (s *slotStorage) Set(ctx context.Context) {
	s.Lock()
	defer s.Unlock()
	s.ctx = ctx
}

var (
	storageMu sync.RWMutex
	storage   = NewGoroutineStorage()
)

// SetStorage replaces the storage used by Current, MakeCurrent and
// Continuation.Activate. Call it before any scope is open.
func SetStorage(s Storage) {
	storageMu.Lock()
	defer storageMu.Unlock()
	storage = s
}

func defaultStorage() Storage {
	storageMu.RLock()
	defer storageMu.RUnlock()
	return storage
}
