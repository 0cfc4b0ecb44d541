package queue

import (
	"sync"
	"sync/atomic"
)

// Handle holds a value replaced by background jobs and read by the frame
// loop. It has its own mutex, separate from the queue.
type Handle[T any] struct {
	mu    sync.Mutex
	val   T
	swaps atomic.Uint64
}

// NewHandle creates a Handle holding v.
func NewHandle[T any](v T) *Handle[T] {
	return &Handle[T]{val: v}
}

// Swap installs v and returns the previous value.
func (h *Handle[T]) Swap(v T) (old T) {
	if !h.mu.TryLock() {
		h.mu.Lock()
	}
	old = h.val
	h.val = v
	h.mu.Unlock()
	h.swaps.Add(1)
	return old
}

// Load returns the current value.
func (h *Handle[T]) Load() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.val
}

// Swaps returns how many times Swap ran.
func (h *Handle[T]) Swaps() uint64 {
	return h.swaps.Load()
}

// Flag is a set-if-clear guard.
type Flag struct {
	v atomic.Bool
}

// TrySet sets the flag and reports true if it was clear.
func (f *Flag) TrySet() bool {
	return f.v.CompareAndSwap(false, true)
}

// Clear resets the flag.
func (f *Flag) Clear() {
	f.v.Store(false)
}

// IsSet reports whether the flag is set.
func (f *Flag) IsSet() bool {
	return f.v.Load()
}
