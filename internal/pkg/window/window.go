// Package window provides the bounded FIFO used for per-symbol histories.
package window

// Rolling keeps at most Cap items; Push evicts the oldest once full.
// Not safe for concurrent use; callers own their windows.
type Rolling[T any] struct {
	items []T
	head  int
	size  int
}

func New[T any](capacity int) *Rolling[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Rolling[T]{items: make([]T, capacity)}
}

func (w *Rolling[T]) Cap() int { return len(w.items) }

func (w *Rolling[T]) Len() int { return w.size }

func (w *Rolling[T]) Full() bool { return w.size == len(w.items) }

// Push appends v and returns the evicted item, if any.
func (w *Rolling[T]) Push(v T) (evicted T, ok bool) {
	capacity := len(w.items)
	if w.size < capacity {
		w.items[(w.head+w.size)%capacity] = v
		w.size++
		return evicted, false
	}
	evicted = w.items[w.head]
	w.items[w.head] = v
	w.head = (w.head + 1) % capacity
	return evicted, true
}

// Values returns a copy ordered oldest to newest.
func (w *Rolling[T]) Values() []T {
	out := make([]T, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.items[(w.head+i)%len(w.items)]
	}
	return out
}

// Last returns the newest item.
func (w *Rolling[T]) Last() (T, bool) {
	var zero T
	if w.size == 0 {
		return zero, false
	}
	return w.items[(w.head+w.size-1)%len(w.items)], true
}

func (w *Rolling[T]) Reset() {
	var zero T
	for i := range w.items {
		w.items[i] = zero
	}
	w.head, w.size = 0, 0
}
