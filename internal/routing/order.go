package routing

import "slotgateway/internal/slots"

// normalize maps any integer, negative included, into [0, n).
func normalize(i, n int) int {
	if n <= 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// candidate is an eligible slot with its position in the eligible list.
type candidate struct {
	slot slots.Slot
	pos  int
}

// serveOrder returns the eligible slots in the order they are tried.
// With a hint, position hint mod n goes first and the rest keep their
// original order. Without one, the list is rotated to start at cursor.
func serveOrder(eligible []slots.Slot, cursor int, hint *int) []candidate {
	n := len(eligible)
	out := make([]candidate, 0, n)
	if n == 0 {
		return out
	}

	if hint != nil {
		first := normalize(*hint, n)
		out = append(out, candidate{slot: eligible[first], pos: first})
		for i, s := range eligible {
			if i != first {
				out = append(out, candidate{slot: s, pos: i})
			}
		}
		return out
	}

	start := normalize(cursor, n)
	for i := 0; i < n; i++ {
		p := (start + i) % n
		out = append(out, candidate{slot: eligible[p], pos: p})
	}
	return out
}
