package carve_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/implicitcad/carve"
	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/expr"
)

// interpConfig keeps these tests portable; the JIT family is exercised
// against the interpreter in engine_jit_test.go.
func interpConfig() carve.Config { return carve.NewConfig().WithInterpreter() }

func buildTape(t *testing.T, build func(ctx *expr.Context) expr.Node) *carve.Tape {
	t.Helper()
	ctx := expr.NewContext()
	root := build(ctx)
	tape, err := carve.BuildTape(expr.NewView(ctx, root), interpConfig())
	require.NoError(t, err)
	return tape
}

func circle(ctx *expr.Context) expr.Node {
	x, y := ctx.X(), ctx.Y()
	return ctx.Sub(ctx.Sqrt(ctx.Add(ctx.Square(x), ctx.Square(y))), ctx.Const(1))
}

func iv(lo, hi float32) carve.Interval { return carve.Interval{Lower: lo, Upper: hi} }

func TestCircleNoChoices(t *testing.T) {
	tape := buildTape(t, circle)
	require.Zero(t, tape.ChoiceCount())

	ev, err := carve.NewIntervalEvaluator(tape)
	require.NoError(t, err)
	out := ev.Eval(iv(-0.5, 0.5), iv(-0.5, 0.5), iv(0, 0), nil)

	// Result must stay within the analytic bounds (with conservative, not
	// exact, arithmetic the bounds may be looser, never tighter-wrong).
	require.LessOrEqual(t, float64(out.Lower), -1.0+1e-6)
	require.GreaterOrEqual(t, float64(out.Upper), math.Sqrt(0.5)-1-1e-6)
	require.False(t, ev.SimplifyRequested())

	// With an empty trail, simplification is an identity rewrite.
	st, err := ev.Simplify()
	require.NoError(t, err)
	require.Equal(t, tape.Len(), st.Len())
	require.Equal(t, tape.ChoiceCount(), st.ChoiceCount())
}

func TestMinChoiceTrail(t *testing.T) {
	tape := buildTape(t, func(ctx *expr.Context) expr.Node {
		return ctx.Min(ctx.X(), ctx.Y())
	})
	ev, err := carve.NewIntervalEvaluator(tape)
	require.NoError(t, err)

	out := ev.Eval(iv(0, 1), iv(2, 3), iv(0, 0), nil)
	require.Equal(t, iv(0, 1), out)
	require.Equal(t, []carve.Choice{api.ChoiceLeft}, ev.Choices())
	require.True(t, ev.SimplifyRequested())

	st, err := ev.Simplify()
	require.NoError(t, err)
	require.Equal(t, 1, st.Len())
	require.Zero(t, st.ChoiceCount())

	pt, err := carve.NewPointEvaluator(st)
	require.NoError(t, err)
	require.Equal(t, float32(0.25), pt.Eval(0.25, 2.5, 0, nil))
}

func TestMaxChoiceTrail(t *testing.T) {
	tape := buildTape(t, func(ctx *expr.Context) expr.Node {
		return ctx.Max(ctx.Sub(ctx.X(), ctx.Const(1)), ctx.Y())
	})
	ev, err := carve.NewIntervalEvaluator(tape)
	require.NoError(t, err)

	out := ev.Eval(iv(0, 0.5), iv(0.6, 1.0), iv(0, 0), nil)
	require.Equal(t, iv(0.6, 1.0), out)
	require.Equal(t, []carve.Choice{api.ChoiceRight}, ev.Choices())

	st, err := ev.Simplify()
	require.NoError(t, err)
	require.Equal(t, 1, st.Len())

	pt, err := carve.NewPointEvaluator(st)
	require.NoError(t, err)
	require.Equal(t, float32(0.8), pt.Eval(0.2, 0.8, 0, nil))
}

func TestNestedChoiceDropsInnerOp(t *testing.T) {
	// min(a, max(b, c)) where the outer min proves its left side dominant:
	// the simplified tape never evaluates the inner max.
	tape := buildTape(t, func(ctx *expr.Context) expr.Node {
		return ctx.Min(ctx.X(), ctx.Max(ctx.Y(), ctx.Z()))
	})
	ev, err := carve.NewIntervalEvaluator(tape)
	require.NoError(t, err)

	out := ev.Eval(iv(0, 1), iv(5, 6), iv(5, 6), nil)
	require.Equal(t, iv(0, 1), out)

	st, err := ev.Simplify()
	require.NoError(t, err)
	require.Equal(t, 1, st.Len())
	require.Zero(t, st.ChoiceCount())

	pt, err := carve.NewPointEvaluator(st)
	require.NoError(t, err)
	require.Equal(t, float32(0.5), pt.Eval(0.5, 5.5, 5.5, nil))
}

func TestRecipStraddlingZero(t *testing.T) {
	tape := buildTape(t, func(ctx *expr.Context) expr.Node {
		return ctx.Recip(ctx.X())
	})
	ev, err := carve.NewIntervalEvaluator(tape)
	require.NoError(t, err)
	require.True(t, ev.Eval(iv(-1, 2), iv(0, 0), iv(0, 0), nil).IsNaN())
}

func TestSpilledTapeMatchesReference(t *testing.T) {
	// Sum of 40 squared integer offsets under a budget of 8 registers:
	// exact arithmetic end to end, so the spilled tape must agree with an
	// unconstrained one bit for bit.
	build := func(ctx *expr.Context) expr.Node {
		x := ctx.X()
		nodes := make([]expr.Node, 0, 40)
		for i := 0; i < 40; i++ {
			nodes = append(nodes, ctx.Square(ctx.Add(x, ctx.Const(float32(i)))))
		}
		for len(nodes) > 1 {
			var next []expr.Node
			for i := 0; i+1 < len(nodes); i += 2 {
				next = append(next, ctx.Add(nodes[i], nodes[i+1]))
			}
			if len(nodes)%2 == 1 {
				next = append(next, nodes[len(nodes)-1])
			}
			nodes = next
		}
		return nodes[0]
	}

	ctx := expr.NewContext()
	root := build(ctx)
	spilled, err := carve.BuildTape(expr.NewView(ctx, root), interpConfig().WithRegisterLimit(8))
	require.NoError(t, err)
	require.Positive(t, spilled.SlotCount())

	wide, err := carve.BuildTape(expr.NewView(ctx, root), interpConfig())
	require.NoError(t, err)

	evS, err := carve.NewPointEvaluator(spilled)
	require.NoError(t, err)
	evW, err := carve.NewPointEvaluator(wide)
	require.NoError(t, err)
	for _, x := range []float32{0, 1, -2, 5} {
		require.Equal(t, evW.Eval(x, 0, 0, nil), evS.Eval(x, 0, 0, nil))
	}
}

func TestEvalSubdivTightens(t *testing.T) {
	tape := buildTape(t, circle)
	ev, err := carve.NewIntervalEvaluator(tape)
	require.NoError(t, err)

	x, y, z := iv(-1, 1), iv(-1, 1), iv(0, 0)
	prev := ev.EvalSubdiv(x, y, z, nil, 0)
	for depth := 1; depth <= 4; depth++ {
		next := ev.EvalSubdiv(x, y, z, nil, depth)
		require.True(t, next.In(prev), "depth %d: %v not within %v", depth, next, prev)
		prev = next
	}
}

func TestSubdivAccumulatesTrail(t *testing.T) {
	tape := buildTape(t, func(ctx *expr.Context) expr.Node {
		return ctx.Min(ctx.X(), ctx.Y())
	})
	ev, err := carve.NewIntervalEvaluator(tape)
	require.NoError(t, err)

	// The leaves see Left, Both, and Right choices as x sweeps past y;
	// the trail must OR them together (Both), not keep the last leaf's
	// answer (Right).
	ev.EvalSubdiv(iv(-1, 1), iv(0.25, 0.25), iv(0, 0), nil, 2)
	require.Equal(t, []carve.Choice{api.ChoiceBoth}, ev.Choices())
}

func TestStorageRoundTrip(t *testing.T) {
	tape := buildTape(t, circle)

	fresh, err := carve.NewPointEvaluator(tape)
	require.NoError(t, err)
	want := fresh.Eval(0.3, -0.4, 0.1, nil)

	donor, err := carve.NewPointEvaluator(tape)
	require.NoError(t, err)
	storage, ok := donor.Take()
	require.True(t, ok)
	_, ok = donor.Take()
	require.False(t, ok)
	require.Panics(t, func() { donor.Eval(0, 0, 0, nil) })

	reborn, err := carve.NewPointEvaluatorWithStorage(tape, storage)
	require.NoError(t, err)
	require.Equal(t, want, reborn.Eval(0.3, -0.4, 0.1, nil))
}

func TestVarBindings(t *testing.T) {
	tape := buildTape(t, func(ctx *expr.Context) expr.Node {
		// sqrt(x² + y²) - r
		x, y := ctx.X(), ctx.Y()
		return ctx.Sub(ctx.Sqrt(ctx.Add(ctx.Square(x), ctx.Square(y))), ctx.Var("r"))
	})
	require.Equal(t, 1, tape.VarCount())

	pt, err := carve.NewPointEvaluator(tape)
	require.NoError(t, err)
	require.InDelta(t, 3, pt.Eval(3, 4, 0, []float32{2}), 1e-6)
	require.InDelta(t, 2, pt.Eval(3, 4, 0, []float32{3}), 1e-6)

	require.Panics(t, func() { pt.Eval(0, 0, 0, nil) })
	require.Panics(t, func() { pt.Eval(0, 0, 0, []float32{1, 2}) })
}

func TestFloatSliceMatchesPoint(t *testing.T) {
	tape := buildTape(t, circle)
	pt, err := carve.NewPointEvaluator(tape)
	require.NoError(t, err)
	sl, err := carve.NewFloatSliceEvaluator(tape)
	require.NoError(t, err)

	var xs, ys, zs []float32
	for i := 0; i < 13; i++ {
		xs = append(xs, float32(i)*0.17-1)
		ys = append(ys, float32(i)*0.11-0.5)
		zs = append(zs, 0)
	}
	out := sl.Eval(xs, ys, zs, nil, nil)
	require.Len(t, out, len(xs))
	for i := range xs {
		require.Equal(t, pt.Eval(xs[i], ys[i], zs[i], nil), out[i])
	}
}

func TestGradEval(t *testing.T) {
	tape := buildTape(t, circle)
	gr, err := carve.NewGradEvaluator(tape)
	require.NoError(t, err)

	g := gr.Eval(3, 4, 0, nil)
	require.InDelta(t, 4, g.V, 1e-6)
	require.InDelta(t, 0.6, g.Dx, 1e-5)
	require.InDelta(t, 0.8, g.Dy, 1e-5)
	require.InDelta(t, 0, g.Dz, 1e-6)
}

func TestBuildTapeErrors(t *testing.T) {
	ctx := expr.NewContext()
	root := ctx.Add(ctx.X(), ctx.Y())
	_, err := carve.BuildTape(expr.NewView(ctx, root), interpConfig().WithRegisterLimit(1))
	require.ErrorIs(t, err, carve.ErrRegisterLimit)
}
