package block

// Fractional ordering helpers. Keys only need to be strictly increasing per
// book; the absolute values carry no meaning.

const (
	// orderStep is the gap left between appended blocks so most insertions
	// bisect a comfortably wide interval.
	orderStep = 1024.0
)

// OrderFirst returns the key for the first block of an empty book.
func OrderFirst() float64 {
	return orderStep
}

// OrderAfter returns a key strictly greater than the current last key.
func OrderAfter(last float64) float64 {
	return last + orderStep
}

// OrderBefore returns a key strictly less than the current first key.
func OrderBefore(first float64) float64 {
	return first - orderStep
}

// OrderBetween returns a key strictly between two neighbors, or false when
// the gap has collapsed below float precision and the caller must append
// instead.
func OrderBetween(prev, next float64) (float64, bool) {
	if !(prev < next) {
		return 0, false
	}
	mid := prev + (next-prev)/2
	if mid <= prev || mid >= next {
		return 0, false
	}
	return mid, true
}
