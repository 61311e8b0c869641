// Package arena provides slot storage addressed by generational handles.
// A handle to a removed item never resolves, even if its slot was reused.
package arena

// Handle addresses an item of the arena. Zero handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero returns true for zero handle.
func (h Handle) IsZero() bool {
	return h.generation == 0
}

// Index returns slot index of handle.
func (h Handle) Index() int {
	return int(h.index)
}

type slot[T any] struct {
	generation uint32
	used       bool
	value      T
}

// Arena stores items of type T. It isn't safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// Insert stores value and returns its handle.
func (a *Arena[T]) Insert(value T) Handle {
	var i uint32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		i = uint32(len(a.slots) - 1)
	}
	s := &a.slots[i]
	s.generation++
	s.used = true
	s.value = value
	a.count++
	return Handle{index: i, generation: s.generation}
}

// Get returns value addressed by handle.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	if !a.valid(h) {
		var zero T
		return zero, false
	}
	return a.slots[h.index].value, true
}

// Remove deletes value addressed by handle. False is returned for stale
// handles.
func (a *Arena[T]) Remove(h Handle) bool {
	if !a.valid(h) {
		return false
	}
	s := &a.slots[h.index]
	var zero T
	s.value = zero
	s.used = false
	a.free = append(a.free, h.index)
	a.count--
	return true
}

// Len returns number of stored items.
func (a *Arena[T]) Len() int {
	return a.count
}

// Each calls fn for every stored item in slot order until fn returns false.
func (a *Arena[T]) Each(fn func(Handle, T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.used {
			continue
		}
		if !fn(Handle{index: uint32(i), generation: s.generation}, s.value) {
			return
		}
	}
}

func (a *Arena[T]) valid(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.index]
	return s.used && s.generation == h.generation
}
