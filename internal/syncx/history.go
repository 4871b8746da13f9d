package syncx

// History keeps the most recent cap values, oldest first.
type History[T any] struct {
	guard *RWGuard[[]T]
	cap   int
}

// NewHistory creates a history holding at most capacity values.
func NewHistory[T any](capacity int) *History[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &History[T]{guard: NewGuard(make([]T, 0, capacity)), cap: capacity}
}

// Push appends v, dropping the oldest value when full.
func (h *History[T]) Push(v T) {
	h.guard.Write(func(items *[]T) {
		if len(*items) == h.cap {
			copy(*items, (*items)[1:])
			*items = (*items)[:h.cap-1]
		}
		*items = append(*items, v)
	})
}

// Snapshot returns a copy of the stored values, oldest first.
func (h *History[T]) Snapshot() []T {
	return View(h.guard, func(items []T) []T {
		return append([]T(nil), items...)
	})
}

// Len returns the number of stored values.
func (h *History[T]) Len() int {
	return View(h.guard, func(items []T) int { return len(items) })
}
