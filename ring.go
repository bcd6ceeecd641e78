package rdp

// ring is a power-of-two-sized circular slot array indexed by a 16-bit
// sequence number (spec §4.2). T is expected to be a pointer type; the
// zero value of T is treated as "slot empty". Grow preserves every
// existing (absolute sequence, value) pair by rehashing into the larger
// array using the same remap the reference implementation uses:
// newElements[(item-index+i) & newMask] = old[item-index+i].
type ring[T any] struct {
	mask     uint32
	elements []T
}

// newRing returns a ring with the default initial capacity of 64 slots.
func newRing[T any]() *ring[T] {
	return &ring[T]{
		mask:     63,
		elements: make([]T, 64),
	}
}

// get returns the value stored at absolute sequence s, or the zero value
// of T if the slot is empty or the buffer has not been initialized.
func (r *ring[T]) get(s uint16) T {
	var zero T
	if r.elements == nil {
		return zero
	}
	return r.elements[uint32(s)&r.mask]
}

// put stores v at absolute sequence s.
func (r *ring[T]) put(s uint16, v T) {
	r.elements[uint32(s)&r.mask] = v
}

// ensureSize grows the ring, if necessary, so that offset index is
// within the mask. base-index is the absolute sequence of the first
// (lowest) live slot; it anchors the remap, which keeps the mask+1
// slots starting there at their absolute positions.
func (r *ring[T]) ensureSize(base uint16, index uint32) {
	if uint64(index) <= uint64(r.mask) {
		return
	}
	r.grow(base, index)
}

// grow doubles the ring's capacity until index fits, then rehashes every
// existing element into its new slot, preserving absolute sequence
// position. Not meant to be called directly; use ensureSize.
func (r *ring[T]) grow(item uint16, index uint32) {
	size := uint64(r.mask) + 1
	for index >= uint32(size) {
		size *= 2
	}

	newElements := make([]T, size)
	newMask := uint32(size) - 1

	for i := uint32(0); i <= r.mask; i++ {
		src := uint16(uint32(item) - index + i)
		newElements[(uint32(item)-index+i)&newMask] = r.get(src)
	}

	r.elements = newElements
	r.mask = newMask
}
