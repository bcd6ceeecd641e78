package rdp

// seqAfter is the wraparound comparison after(a,b) := (int16)(a-b) < 0
// (spec §4.1). Despite its name it reports true when a precedes b in the
// 16-bit sequence space, i.e. when b lies less than half the space ahead
// of a. after(a,a) is always false, and after(a,b) == !after(b,a) for
// every a != b except a-b == 0x8000, where both are true.
func seqAfter(a, b uint16) bool {
	return int16(a-b) < 0
}

// seqLeq reports whether a is b or comes before it.
func seqLeq(a, b uint16) bool {
	return a == b || seqAfter(a, b)
}
