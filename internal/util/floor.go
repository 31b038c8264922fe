package util

import "math"

// FloorToInt floors v and converts it to int, saturating at the int range.
// NaN maps to 0.
func FloorToInt(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	f := math.Floor(v)
	if f >= math.MaxInt {
		return math.MaxInt
	}
	if f <= math.MinInt {
		return math.MinInt
	}
	return int(f)
}

// FloorDiv divides a by b rounding toward negative infinity. b == 0 yields 0.
func FloorDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	q := a / b
	r := a % b
	if r != 0 && ((r > 0) != (b > 0)) {
		q--
	}
	return q
}

// AbsInt returns |v|.
func AbsInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
