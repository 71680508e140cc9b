package datom

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// resource is the ownership core shared by every wrapper. It holds exactly
// one native handle and hands it to the native destroy call exactly once.
type resource struct {
	mu     sync.Mutex
	kind   string
	handle nativeHandle
}

func (r *resource) init(kind string, h nativeHandle) {
	r.kind = kind
	r.handle = h
}

// do runs fn with the live handle. The lock is held for the whole call so a
// concurrent release cannot free the handle underneath it.
func (r *resource) do(fn func(nativeHandle) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == invalidHandle {
		return fmt.Errorf("%s: %w", r.kind, ErrReleased)
	}
	return fn(r.handle)
}

// release invalidates the wrapper and forwards the handle to destroy. It
// reports false, without calling destroy, when already released.
func (r *resource) release(destroy func(nativeHandle)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == invalidHandle {
		return false
	}
	h := r.handle
	r.handle = invalidHandle
	destroy(h)
	return true
}

func (r *resource) valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle != invalidHandle
}

// reportLeak runs from a finalizer. It never frees native memory: the
// collector may run it on any goroutine, at any time, or never.
func (r *resource) reportLeak() {
	if r.valid() {
		Logger().Warn("native resource garbage collected without Close; its native memory is leaked",
			zap.String("kind", r.kind))
	}
}
