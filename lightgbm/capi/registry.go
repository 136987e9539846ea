package capi

import (
	"sync"
)

// registry maps opaque handles to backend objects. Handles are never
// reused within a process so a stale handle can only miss.
type registry[T any] struct {
	mu   sync.Mutex
	next Handle
	reg  map[Handle]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{next: 1, reg: make(map[Handle]T)}
}

func (r *registry[T]) put(v T) Handle {
	r.mu.Lock()
	h := r.next
	r.next++
	r.reg[h] = v
	r.mu.Unlock()
	return h
}

func (r *registry[T]) get(h Handle) (T, bool) {
	r.mu.Lock()
	v, ok := r.reg[h]
	r.mu.Unlock()
	return v, ok
}

// del removes h and returns the object it referred to.
func (r *registry[T]) del(h Handle) (T, bool) {
	r.mu.Lock()
	v, ok := r.reg[h]
	delete(r.reg, h)
	r.mu.Unlock()
	return v, ok
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reg)
}
