// Package slottable implements the generational-handle arena that owns all
// per-connection state: a fixed-capacity free-list of slot ids plus, for
// every per-connection attribute, a parallel DataList gated by the same
// generation counters. See spec §4.5 and §9.
package slottable

// Handle is an opaque reference to a slot. It is only valid while the slot's
// generation matches the generation stored when the handle was issued; once
// the slot is deleted and its generation bumped again, every outstanding
// Handle referring to it is permanently stale.
type Handle struct {
	Slot       int
	Generation uint32
}

// slotState tracks the liveness of one slot independent of any attribute.
type slotState struct {
	generation uint32
	alive      bool
}

// List is the fixed-capacity table of slots: it hands out and retires
// Handles, but stores no attribute data itself (see DataList for that).
type List struct {
	slots []slotState
	free  []int
}

// New creates a List with room for capacity concurrent live handles.
func New(capacity int) *List {
	l := &List{
		slots: make([]slotState, capacity),
		free:  make([]int, capacity),
	}
	for i := range l.free {
		l.free[i] = capacity - 1 - i
	}
	return l
}

// Cap returns the table's fixed capacity.
func (l *List) Cap() int {
	return len(l.slots)
}

// Create allocates a slot and returns its handle, or false if the table is
// full. The returned handle's generation is always odd.
func (l *List) Create() (Handle, bool) {
	n := len(l.free)
	if n == 0 {
		return Handle{}, false
	}
	slot := l.free[n-1]
	l.free = l.free[:n-1]

	s := &l.slots[slot]
	s.generation++
	s.alive = true

	return Handle{Slot: slot, Generation: s.generation}, true
}

// Delete retires h's slot, bumping its generation so every outstanding handle
// referring to it becomes stale. Returns false if h was already stale.
func (l *List) Delete(h Handle) bool {
	if !l.valid(h) {
		return false
	}
	s := &l.slots[h.Slot]
	s.generation++
	s.alive = false
	l.free = append(l.free, h.Slot)
	return true
}

func (l *List) valid(h Handle) bool {
	if h.Slot < 0 || h.Slot >= len(l.slots) {
		return false
	}
	s := l.slots[h.Slot]
	return s.alive && s.generation == h.Generation
}

// Valid reports whether h refers to a currently live slot.
func (l *List) Valid(h Handle) bool {
	return l.valid(h)
}

// Iterate calls fn for every currently live handle, in slot order.
func (l *List) Iterate(fn func(Handle)) {
	for slot, s := range l.slots {
		if s.alive {
			fn(Handle{Slot: slot, Generation: s.generation})
		}
	}
}

// Len returns the number of currently live slots.
func (l *List) Len() int {
	n := 0
	for _, s := range l.slots {
		if s.alive {
			n++
		}
	}
	return n
}

// DataList stores one attribute of type T per slot in List, shadowing its own
// copy of each slot's generation so that Get/Set/Remove can detect a stale
// handle without consulting List directly.
type DataList[T any] struct {
	generation []uint32
	present    []bool
	value      []T
}

// NewDataList creates a DataList with room for capacity slots, matching the
// capacity of the List it accompanies.
func NewDataList[T any](capacity int) *DataList[T] {
	return &DataList[T]{
		generation: make([]uint32, capacity),
		present:    make([]bool, capacity),
		value:      make([]T, capacity),
	}
}

// Set stores v for h, as long as h's generation is not older than what this
// DataList has on record. A newer generation (the slot's next occupant) is
// adopted and replaces whatever a previous occupant left behind. Returns false
// if h is older than the generation on record.
func (d *DataList[T]) Set(h Handle, v T) bool {
	if h.Slot < 0 || h.Slot >= len(d.generation) {
		return false
	}
	if d.generation[h.Slot] > h.Generation {
		return false
	}
	d.generation[h.Slot] = h.Generation
	d.present[h.Slot] = true
	d.value[h.Slot] = v
	return true
}

// Get returns the value stored for h and true, or the zero value and false if
// h is stale or nothing has been set.
func (d *DataList[T]) Get(h Handle) (T, bool) {
	var zero T
	if h.Slot < 0 || h.Slot >= len(d.generation) {
		return zero, false
	}
	if !d.present[h.Slot] || d.generation[h.Slot] != h.Generation {
		return zero, false
	}
	return d.value[h.Slot], true
}

// GetPtr returns a pointer to the stored value for in-place mutation, or nil
// if h is stale or nothing has been set. The pointer is invalidated by any
// subsequent Set/Remove on the same slot.
func (d *DataList[T]) GetPtr(h Handle) *T {
	if h.Slot < 0 || h.Slot >= len(d.generation) {
		return nil
	}
	if !d.present[h.Slot] || d.generation[h.Slot] != h.Generation {
		return nil
	}
	return &d.value[h.Slot]
}

// Remove clears the value stored for h. A stale handle is a no-op.
func (d *DataList[T]) Remove(h Handle) {
	if h.Slot < 0 || h.Slot >= len(d.generation) {
		return
	}
	if d.generation[h.Slot] != h.Generation {
		return
	}
	var zero T
	d.present[h.Slot] = false
	d.value[h.Slot] = zero
}
