// Package buffer provides a generic, thread-safe ring buffer with
// configurable overflow policies. It backs the in-memory queues between
// producers (listeners, collectors, tracers) and their slower consumers.
package buffer

import (
	"sync"

	"github.com/c360/devstream/errors"
)

// OverflowPolicy defines behavior when a full buffer receives a write
type OverflowPolicy int

const (
	// DropOldest evicts the oldest item to make room for the new one
	DropOldest OverflowPolicy = iota
	// DropNewest discards the incoming item and keeps the buffer as-is
	DropNewest
)

// Option configures a Ring
type Option[T any] func(*Ring[T])

// WithOverflowPolicy sets the full-buffer behavior (default DropOldest)
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(r *Ring[T]) { r.policy = policy }
}

// WithDropCallback registers a callback invoked with every dropped item.
// The callback runs outside the buffer lock.
func WithDropCallback[T any](fn func(T)) Option[T] {
	return func(r *Ring[T]) { r.onDrop = fn }
}

// Ring is a fixed-capacity circular buffer. All methods are safe for
// concurrent use.
type Ring[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	policy   OverflowPolicy
	onDrop   func(T)
	writes   uint64
	drops    uint64
	closed   bool
}

// NewRing creates a ring buffer with the given capacity. A capacity below
// one is raised to one.
func NewRing[T any](capacity int, opts ...Option[T]) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	r := &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		policy:   DropOldest,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Write adds an item according to the overflow policy. Returns an error
// only when the buffer has been closed.
func (r *Ring[T]) Write(item T) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return errors.WrapListener(errors.ErrShuttingDown, "buffer", "Write", "buffer closed")
	}

	var dropped T
	var didDrop bool

	if r.size == r.capacity {
		r.drops++
		switch r.policy {
		case DropNewest:
			r.mu.Unlock()
			if r.onDrop != nil {
				r.onDrop(item)
			}
			return nil
		case DropOldest:
			dropped = r.items[r.tail]
			didDrop = true
			r.tail = (r.tail + 1) % r.capacity
			r.size--
		}
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.size++
	r.writes++
	r.mu.Unlock()

	if didDrop && r.onDrop != nil {
		r.onDrop(dropped)
	}
	return nil
}

// Read removes and returns the oldest item, reporting false when empty
func (r *Ring[T]) Read() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	item := r.items[r.tail]
	r.items[r.tail] = zero
	r.tail = (r.tail + 1) % r.capacity
	r.size--
	return item, true
}

// ReadBatch removes and returns up to max items in FIFO order
func (r *Ring[T]) ReadBatch(max int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max > r.size {
		max = r.size
	}
	if max <= 0 {
		return nil
	}

	var zero T
	batch := make([]T, 0, max)
	for i := 0; i < max; i++ {
		batch = append(batch, r.items[r.tail])
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % r.capacity
		r.size--
	}
	return batch
}

// Size returns the current number of buffered items
func (r *Ring[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the maximum number of items the buffer can hold
func (r *Ring[T]) Capacity() int {
	return r.capacity
}

// Drops returns the cumulative count of items dropped to overflow
func (r *Ring[T]) Drops() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drops
}

// Close marks the buffer closed. Buffered items remain readable; further
// writes fail. Close is idempotent.
func (r *Ring[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
