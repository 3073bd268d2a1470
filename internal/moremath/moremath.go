// Package moremath includes float32 helpers absent from the standard math
// package. math.Min and math.Max operate on float64 and add conversion
// noise in hot loops; these mirror their NaN behavior (any NaN operand
// yields NaN) at float32 width.
package moremath

import "math"

// Min32 returns the smaller of x and y, or NaN if either is NaN.
func Min32(x, y float32) float32 {
	switch {
	case x != x || y != y:
		return nan32()
	case x < y:
		return x
	}
	return y
}

// Max32 returns the larger of x and y, or NaN if either is NaN.
func Max32(x, y float32) float32 {
	switch {
	case x != x || y != y:
		return nan32()
	case x > y:
		return x
	}
	return y
}

// Abs32 returns the absolute value of x, clearing the sign bit so that
// -0.0 maps to +0.0 the way hardware float abs does.
func Abs32(x float32) float32 {
	return math.Float32frombits(math.Float32bits(x) &^ (1 << 31))
}

func nan32() float32 {
	v := float32(0)
	return v / v
}
