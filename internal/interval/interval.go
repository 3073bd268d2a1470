// Package interval implements conservative interval arithmetic over
// api.Interval: every operation returns bounds guaranteed to contain the
// true result for any inputs drawn from the operand intervals.
//
// Bounds are conservative in spirit but not rounding-correct; no
// floating-point rounding modes are touched. Operations evaluated outside
// their domain (division or reciprocal across zero, square root of a
// strictly negative range) return the NaN interval, which then propagates
// through the rest of the computation.
package interval

import (
	"math"

	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/internal/moremath"
)

// Add returns a+b.
func Add(a, b api.Interval) api.Interval {
	return api.Interval{Lower: a.Lower + b.Lower, Upper: a.Upper + b.Upper}
}

// Sub returns a-b.
func Sub(a, b api.Interval) api.Interval {
	return api.Interval{Lower: a.Lower - b.Upper, Upper: a.Upper - b.Lower}
}

// Neg returns -a.
func Neg(a api.Interval) api.Interval {
	return api.Interval{Lower: -a.Upper, Upper: -a.Lower}
}

// Mul returns a*b, bounded by the extrema of the four cross products.
func Mul(a, b api.Interval) api.Interval {
	lo := a.Lower * b.Lower
	hi := lo
	for _, v := range [3]float32{a.Lower * b.Upper, a.Upper * b.Lower, a.Upper * b.Upper} {
		lo = moremath.Min32(lo, v)
		hi = moremath.Max32(hi, v)
	}
	return api.Interval{Lower: lo, Upper: hi}
}

// Div returns a/b, or the NaN interval when b straddles zero. With a
// sign-definite divisor the bounds are the extrema of the four quotients,
// computed by division rather than multiplication by a reciprocal so that
// backends agree bit for bit.
func Div(a, b api.Interval) api.Interval {
	if b.Lower <= 0 && b.Upper >= 0 {
		return api.NaNInterval()
	}
	lo := a.Lower / b.Lower
	hi := lo
	for _, v := range [3]float32{a.Lower / b.Upper, a.Upper / b.Lower, a.Upper / b.Upper} {
		lo = moremath.Min32(lo, v)
		hi = moremath.Max32(hi, v)
	}
	return api.Interval{Lower: lo, Upper: hi}
}

// Recip returns 1/a, or the NaN interval when a straddles zero.
func Recip(a api.Interval) api.Interval {
	if a.Lower <= 0 && a.Upper >= 0 {
		return api.NaNInterval()
	}
	return api.Interval{Lower: 1 / a.Upper, Upper: 1 / a.Lower}
}

// Abs returns |a|.
func Abs(a api.Interval) api.Interval {
	switch {
	case a.IsNaN():
		return a
	case a.Lower >= 0:
		return a
	case a.Upper <= 0:
		return api.Interval{Lower: -a.Upper, Upper: -a.Lower}
	default:
		return api.Interval{Lower: 0, Upper: moremath.Max32(a.Upper, -a.Lower)}
	}
}

// Square returns a*a, which is tighter than Mul(a, a) when a straddles zero.
func Square(a api.Interval) api.Interval {
	switch {
	case a.IsNaN():
		return api.NaNInterval()
	case a.Lower >= 0:
		return api.Interval{Lower: a.Lower * a.Lower, Upper: a.Upper * a.Upper}
	case a.Upper <= 0:
		return api.Interval{Lower: a.Upper * a.Upper, Upper: a.Lower * a.Lower}
	default:
		return api.Interval{Lower: 0, Upper: moremath.Max32(a.Lower*a.Lower, a.Upper*a.Upper)}
	}
}

// Sqrt returns the square root of a, clamping a partially negative range to
// zero and returning the NaN interval for a strictly negative one.
func Sqrt(a api.Interval) api.Interval {
	switch {
	case a.IsNaN():
		return api.NaNInterval()
	case a.Lower >= 0:
		return api.Interval{Lower: sqrt32(a.Lower), Upper: sqrt32(a.Upper)}
	case a.Upper < 0:
		return api.NaNInterval()
	default:
		return api.Interval{Lower: 0, Upper: sqrt32(a.Upper)}
	}
}

// MinChoice returns min(a, b) and which side the bounds prove redundant:
// ChoiceLeft when a is entirely below b, ChoiceRight when b is entirely
// below a, ChoiceBoth otherwise (including any NaN operand, where nothing
// can be proven).
func MinChoice(a, b api.Interval) (api.Interval, api.Choice) {
	choice := api.ChoiceBoth
	if a.Upper < b.Lower {
		choice = api.ChoiceLeft
	} else if b.Upper < a.Lower {
		choice = api.ChoiceRight
	}
	return api.Interval{
		Lower: moremath.Min32(a.Lower, b.Lower),
		Upper: moremath.Min32(a.Upper, b.Upper),
	}, choice
}

// MaxChoice returns max(a, b) and which side the bounds prove redundant.
func MaxChoice(a, b api.Interval) (api.Interval, api.Choice) {
	choice := api.ChoiceBoth
	if a.Lower > b.Upper {
		choice = api.ChoiceLeft
	} else if b.Lower > a.Upper {
		choice = api.ChoiceRight
	}
	return api.Interval{
		Lower: moremath.Max32(a.Lower, b.Lower),
		Upper: moremath.Max32(a.Upper, b.Upper),
	}, choice
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
