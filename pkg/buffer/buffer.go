package buffer

import (
	"sync"

	"go.uber.org/zap"
)

// RingBuffer is a thread-safe generic circular buffer.
// When full, Add overwrites the oldest item.
type RingBuffer[T any] struct {
	mu      sync.Mutex
	data    []T
	head    int
	size    int
	dropped uint64
	logger  *zap.Logger
}

// New creates a RingBuffer holding at most capacity items
func New[T any](capacity int, logger *zap.Logger) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:   make([]T, capacity),
		logger: logger,
	}
}

// Add appends item, overwriting the oldest entry when full
func (rb *RingBuffer[T]) Add(item T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.addLocked(item)
}

// AddAll appends items in order under a single lock
func (rb *RingBuffer[T]) AddAll(items []T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for _, item := range items {
		rb.addLocked(item)
	}
}

func (rb *RingBuffer[T]) addLocked(item T) {
	if rb.size == len(rb.data) {
		rb.dropped++
		rb.logger.Warn("ring buffer full, overwriting oldest entry",
			zap.Int("capacity", len(rb.data)),
			zap.Uint64("dropped_total", rb.dropped))
	}

	rb.data[rb.head] = item
	rb.head = (rb.head + 1) % len(rb.data)
	if rb.size < len(rb.data) {
		rb.size++
	}
}

// Drain returns all items oldest first and empties the buffer
func (rb *RingBuffer[T]) Drain() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	items := rb.orderedLocked()
	var zero T
	for i := range rb.data {
		rb.data[i] = zero
	}
	rb.size = 0
	rb.head = 0
	return items
}

// Snapshot returns all items oldest first without removing them
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.orderedLocked()
}

func (rb *RingBuffer[T]) orderedLocked() []T {
	if rb.size == 0 {
		return nil
	}
	items := make([]T, rb.size)
	start := (rb.head - rb.size + len(rb.data)) % len(rb.data)
	for i := range items {
		items[i] = rb.data[(start+i)%len(rb.data)]
	}
	return items
}

// Size returns the number of buffered items
func (rb *RingBuffer[T]) Size() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size
}

// Capacity returns the maximum number of items
func (rb *RingBuffer[T]) Capacity() int {
	return len(rb.data)
}

// Dropped returns how many items were overwritten before being drained
func (rb *RingBuffer[T]) Dropped() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}
