package mathutil

import (
	"golang.org/x/exp/constraints"
)

// CeilInts divides a by b rounding toward positive infinity.
func CeilInts[T constraints.Integer](a, b T) T {
	q := a / b
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q
}

func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// InRange reports whether lo <= v <= hi.
func InRange[T constraints.Integer | constraints.Float](v, lo, hi T) bool {
	return v >= lo && v <= hi
}
