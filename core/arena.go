package core

// Handle addresses an object owned by an Arena. The generation tag makes a
// handle to a removed slot go stale instead of silently resolving to
// whatever object reused the slot.
type Handle struct {
	idx uint32
	gen uint32
}

// IsZero reports whether the handle was never issued by an arena.
func (h Handle) IsZero() bool { return h.gen == 0 }

type arenaSlot[T any] struct {
	value T
	gen   uint32
	live  bool
}

// Arena is a flat store of owned objects addressed by generation-tagged
// handles. Creation and destruction are explicit; there is no global
// registry behind it. Not safe for concurrent use.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	count int
}

// Insert takes ownership of v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	a.count++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.value = v
		s.gen++
		s.live = true
		return Handle{idx: idx, gen: s.gen}
	}
	a.slots = append(a.slots, arenaSlot[T]{value: v, gen: 1, live: true})
	return Handle{idx: uint32(len(a.slots) - 1), gen: 1}
}

// Get resolves a handle. A stale or foreign handle yields ok == false.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if int(h.idx) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[h.idx]
	if !s.live || s.gen != h.gen {
		return zero, false
	}
	return s.value, true
}

// Remove destroys the object behind h. Returns false if h is stale.
func (a *Arena[T]) Remove(h Handle) bool {
	if int(h.idx) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.idx]
	if !s.live || s.gen != h.gen {
		return false
	}
	var zero T
	s.value = zero
	s.live = false
	a.free = append(a.free, h.idx)
	a.count--
	return true
}

func (a *Arena[T]) Len() int { return a.count }

// Each visits every live object. Return false from fn to stop early.
func (a *Arena[T]) Each(fn func(Handle, T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !fn(Handle{idx: uint32(i), gen: s.gen}, s.value) {
			return
		}
	}
}
