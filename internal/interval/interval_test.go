package interval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/implicitcad/carve/api"
)

func i(lo, hi float32) api.Interval { return api.Interval{Lower: lo, Upper: hi} }

func TestAddSubNeg(t *testing.T) {
	require.Equal(t, i(3, 7), Add(i(1, 2), i(2, 5)))
	require.Equal(t, i(-4, 0), Sub(i(1, 2), i(2, 5)))
	require.Equal(t, i(-2, -1), Neg(i(1, 2)))
	require.Equal(t, i(-3, 4), Neg(i(-4, 3)))
}

func TestMul(t *testing.T) {
	tests := []struct {
		name    string
		a, b, r api.Interval
	}{
		{"positive", i(1, 2), i(3, 4), i(3, 8)},
		{"negative lhs", i(-2, -1), i(3, 4), i(-8, -3)},
		{"straddling", i(-2, 3), i(-1, 4), i(-8, 12)},
		{"point", i(2, 2), i(5, 5), i(10, 10)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.r, Mul(tc.a, tc.b))
			require.Equal(t, tc.r, Mul(tc.b, tc.a))
		})
	}
}

func TestDivRecip(t *testing.T) {
	require.Equal(t, i(0.5, 2), Div(i(1, 4), i(2, 2)))
	require.True(t, Div(i(1, 4), i(-1, 2)).IsNaN())
	require.True(t, Div(i(1, 4), i(0, 2)).IsNaN())

	// The recip contract: NaN when the operand straddles zero, otherwise
	// [1/upper, 1/lower].
	require.Equal(t, i(0.25, 0.5), Recip(i(2, 4)))
	require.Equal(t, i(-0.5, -0.25), Recip(i(-4, -2)))
	require.True(t, Recip(i(-1, 2)).IsNaN())
	require.True(t, Recip(i(0, 2)).IsNaN())
	require.True(t, Recip(i(-2, 0)).IsNaN())
}

func TestAbs(t *testing.T) {
	require.Equal(t, i(1, 2), Abs(i(1, 2)))
	require.Equal(t, i(1, 2), Abs(i(-2, -1)))
	require.Equal(t, i(0, 3), Abs(i(-3, 2)))
	require.Equal(t, i(0, 5), Abs(i(-2, 5)))
	require.True(t, Abs(api.NaNInterval()).IsNaN())
}

func TestSquare(t *testing.T) {
	require.Equal(t, i(1, 4), Square(i(1, 2)))
	require.Equal(t, i(1, 4), Square(i(-2, -1)))
	require.Equal(t, i(0, 9), Square(i(-3, 2)))
	require.True(t, Square(api.NaNInterval()).IsNaN())
}

func TestSqrt(t *testing.T) {
	require.Equal(t, i(1, 2), Sqrt(i(1, 4)))
	require.Equal(t, i(0, 2), Sqrt(i(-1, 4)))
	require.True(t, Sqrt(i(-4, -1)).IsNaN())
	require.True(t, Sqrt(api.NaNInterval()).IsNaN())
}

func TestMinChoice(t *testing.T) {
	tests := []struct {
		name   string
		a, b   api.Interval
		r      api.Interval
		choice api.Choice
	}{
		{"overlapping", i(0, 1), i(0.5, 1.5), i(0, 1), api.ChoiceBoth},
		{"left wins", i(0, 1), i(2, 3), i(0, 1), api.ChoiceLeft},
		{"right wins", i(2, 3), i(0, 1), i(0, 1), api.ChoiceRight},
		{"touching", i(0, 1), i(1, 2), i(0, 1), api.ChoiceBoth},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, c := MinChoice(tc.a, tc.b)
			require.Equal(t, tc.r, v)
			require.Equal(t, tc.choice, c)
		})
	}
}

func TestMaxChoice(t *testing.T) {
	v, c := MaxChoice(i(0, 1), i(2, 3))
	require.Equal(t, i(2, 3), v)
	require.Equal(t, api.ChoiceRight, c)

	v, c = MaxChoice(i(2, 3), i(0, 1))
	require.Equal(t, i(2, 3), v)
	require.Equal(t, api.ChoiceLeft, c)

	v, c = MaxChoice(i(0, 2), i(1, 3))
	require.Equal(t, i(1, 3), v)
	require.Equal(t, api.ChoiceBoth, c)
}

func TestMinMaxChoiceNaN(t *testing.T) {
	// Nothing is provable against an empty interval.
	nan := api.NaNInterval()
	v, c := MinChoice(nan, i(0, 1))
	require.True(t, v.IsNaN())
	require.Equal(t, api.ChoiceBoth, c)
	v, c = MaxChoice(i(0, 1), nan)
	require.True(t, v.IsNaN())
	require.Equal(t, api.ChoiceBoth, c)
}

func TestNaNPropagation(t *testing.T) {
	nan := api.NaNInterval()
	require.True(t, Add(nan, i(0, 1)).IsNaN())
	require.True(t, Sub(i(0, 1), nan).IsNaN())
	require.True(t, Mul(nan, i(2, 3)).IsNaN())
	require.True(t, Neg(nan).IsNaN())
	require.True(t, math.IsNaN(float64(Sqrt(i(-2, -1)).Lower)))
}
