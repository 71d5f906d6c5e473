package ringbuffer

// A RingBuffer is a ring buffer.
// It acts as a heap that doesn't cause any allocations.
type RingBuffer[T any] struct {
	ring             []T
	headPos, tailPos int
	full             bool
}

// Init preallocates a buffer with a certain size.
func (r *RingBuffer[T]) Init(size int) {
	r.ring = make([]T, size)
}

// Len returns the number of elements in the ring buffer.
func (r *RingBuffer[T]) Len() int {
	if r.full {
		return len(r.ring)
	}
	if r.tailPos >= r.headPos {
		return r.tailPos - r.headPos
	}
	return r.tailPos - r.headPos + len(r.ring)
}

// Empty says if the ring buffer is empty.
func (r *RingBuffer[T]) Empty() bool {
	return !r.full && r.headPos == r.tailPos
}

// PushBack adds a new element.
// If the ring buffer is full, its capacity is increased first.
func (r *RingBuffer[T]) PushBack(t T) {
	if r.full || len(r.ring) == 0 {
		r.grow()
	}
	r.ring[r.tailPos] = t
	r.tailPos++
	if r.tailPos == len(r.ring) {
		r.tailPos = 0
	}
	if r.tailPos == r.headPos {
		r.full = true
	}
}

// PopFront returns the next element.
// It must not be called when the buffer is empty, that means that
// callers might need to check if there are elements in the buffer first.
func (r *RingBuffer[T]) PopFront() T {
	if r.Empty() {
		panic("github.com/pitscout/fountain/internal/utils/ringbuffer: pop from an empty queue")
	}
	r.full = false
	t := r.ring[r.headPos]
	var zero T
	r.ring[r.headPos] = zero
	r.headPos++
	if r.headPos == len(r.ring) {
		r.headPos = 0
	}
	return t
}

// PeekFront returns the next element.
// It must not be called when the buffer is empty, that means that
// callers might need to check if there are elements in the buffer first.
func (r *RingBuffer[T]) PeekFront() T {
	if r.Empty() {
		panic("github.com/pitscout/fountain/internal/utils/ringbuffer: peek from an empty queue")
	}
	return r.ring[r.headPos]
}

// Clear removes all elements.
func (r *RingBuffer[T]) Clear() {
	var zero T
	for i := range r.ring {
		r.ring[i] = zero
	}
	r.headPos = 0
	r.tailPos = 0
	r.full = false
}

// grow doubles the capacity and moves the elements to the front of the new slice.
func (r *RingBuffer[T]) grow() {
	size := len(r.ring) * 2
	if size == 0 {
		size = 1
	}
	ring := make([]T, size)
	n := r.Len()
	if !r.Empty() {
		if r.headPos < r.tailPos {
			copy(ring, r.ring[r.headPos:r.tailPos])
		} else {
			m := copy(ring, r.ring[r.headPos:])
			copy(ring[m:], r.ring[:r.tailPos])
		}
	}
	r.ring = ring
	r.headPos = 0
	r.tailPos = n
	r.full = false
}
