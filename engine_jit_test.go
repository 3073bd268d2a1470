//go:build amd64 && (linux || darwin || freebsd)

package carve_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/implicitcad/carve"
	"github.com/implicitcad/carve/expr"
)

// The interpreter implements the same assembler contract by recording
// instead of emitting, which makes it the oracle for the native backends:
// identical tapes must produce identical results (NaN compared by class,
// since payload bits are hardware detail).

func jitAndInterpTapes(t *testing.T, ctx *expr.Context, root expr.Node) (*carve.Tape, *carve.Tape) {
	t.Helper()
	v := expr.NewView(ctx, root)
	jt, err := carve.BuildTape(v, carve.NewConfig())
	require.NoError(t, err)
	it, err := carve.BuildTape(v, carve.NewConfig().WithInterpreter())
	require.NoError(t, err)
	return jt, it
}

func TestJITPointMatchesInterpreter(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for iter := 0; iter < 200; iter++ {
		ctx, root := genExpr(rng, 1+rng.Intn(30))
		jt, it := jitAndInterpTapes(t, ctx, root)

		jp, err := carve.NewPointEvaluator(jt)
		require.NoError(t, err)
		ip, err := carve.NewPointEvaluator(it)
		require.NoError(t, err)

		for s := 0; s < 32; s++ {
			x := rng.Float32()*4 - 2
			y := rng.Float32()*4 - 2
			z := rng.Float32()*4 - 2
			a, b := jp.Eval(x, y, z, nil), ip.Eval(x, y, z, nil)
			require.True(t, eqOrBothNaN(a, b),
				"iter %d: jit %v != interp %v at (%v,%v,%v)", iter, a, b, x, y, z)
		}
	}
}

func TestJITIntervalMatchesInterpreter(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	for iter := 0; iter < 200; iter++ {
		ctx, root := genExpr(rng, 1+rng.Intn(30))
		jt, it := jitAndInterpTapes(t, ctx, root)

		ji, err := carve.NewIntervalEvaluator(jt)
		require.NoError(t, err)
		ii, err := carve.NewIntervalEvaluator(it)
		require.NoError(t, err)

		for s := 0; s < 16; s++ {
			x, y, z := randomInterval(rng), randomInterval(rng), randomInterval(rng)
			a := ji.Eval(x, y, z, nil)
			b := ii.Eval(x, y, z, nil)
			require.True(t, eqOrBothNaN(a.Lower, b.Lower) && eqOrBothNaN(a.Upper, b.Upper),
				"iter %d: jit %v != interp %v over (%v,%v,%v)", iter, a, b, x, y, z)
			require.Equal(t, ii.Choices(), ji.Choices(), "iter %d", iter)
			require.Equal(t, ii.SimplifyRequested(), ji.SimplifyRequested(), "iter %d", iter)
		}
	}
}

func TestJITSliceMatchesJITPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for iter := 0; iter < 50; iter++ {
		ctx, root := genExpr(rng, 1+rng.Intn(30))
		jt, _ := jitAndInterpTapes(t, ctx, root)

		pt, err := carve.NewPointEvaluator(jt)
		require.NoError(t, err)
		sl, err := carve.NewFloatSliceEvaluator(jt)
		require.NoError(t, err)

		n := 1 + rng.Intn(20) // exercises the ragged tail
		xs := make([]float32, n)
		ys := make([]float32, n)
		zs := make([]float32, n)
		for i := range xs {
			xs[i] = rng.Float32()*4 - 2
			ys[i] = rng.Float32()*4 - 2
			zs[i] = rng.Float32()*4 - 2
		}
		out := sl.Eval(xs, ys, zs, nil, nil)
		for i := range xs {
			p := pt.Eval(xs[i], ys[i], zs[i], nil)
			require.True(t, eqOrBothNaN(p, out[i]), "iter %d index %d: %v != %v", iter, i, p, out[i])
		}
	}
}

func TestJITGradMatchesInterpreter(t *testing.T) {
	rng := rand.New(rand.NewSource(14))
	for iter := 0; iter < 200; iter++ {
		ctx, root := genExpr(rng, 1+rng.Intn(25))
		jt, it := jitAndInterpTapes(t, ctx, root)

		jg, err := carve.NewGradEvaluator(jt)
		require.NoError(t, err)
		ig, err := carve.NewGradEvaluator(it)
		require.NoError(t, err)

		for s := 0; s < 16; s++ {
			x := rng.Float32()*4 - 2
			y := rng.Float32()*4 - 2
			z := rng.Float32()*4 - 2
			a, b := jg.Eval(x, y, z, nil), ig.Eval(x, y, z, nil)
			for _, pair := range [][2]float32{{a.V, b.V}, {a.Dx, b.Dx}, {a.Dy, b.Dy}, {a.Dz, b.Dz}} {
				require.True(t, eqOrBothNaN(pair[0], pair[1]),
					"iter %d: jit %+v != interp %+v at (%v,%v,%v)", iter, a, b, x, y, z)
			}
		}
	}
}

func TestJITStorageRoundTripBitwise(t *testing.T) {
	ctx := expr.NewContext()
	x, y := ctx.X(), ctx.Y()
	root := ctx.Min(ctx.Sub(ctx.Sqrt(ctx.Add(ctx.Square(x), ctx.Square(y))), ctx.Const(1)), y)
	jt, err := carve.BuildTape(expr.NewView(ctx, root), carve.NewConfig())
	require.NoError(t, err)

	fresh, err := carve.NewIntervalEvaluator(jt)
	require.NoError(t, err)

	donor, err := carve.NewIntervalEvaluator(jt)
	require.NoError(t, err)
	storage, ok := donor.Take()
	require.True(t, ok)

	reborn, err := carve.NewIntervalEvaluatorWithStorage(jt, storage)
	require.NoError(t, err)

	for _, region := range [][2]carve.Interval{
		{iv(-0.5, 0.5), iv(-0.5, 0.5)},
		{iv(2, 3), iv(-8, -6)},
		{iv(-1, 2), iv(0, 0)},
	} {
		a := fresh.Eval(region[0], region[1], iv(0, 0), nil)
		b := reborn.Eval(region[0], region[1], iv(0, 0), nil)
		require.Equal(t, a, b)
		require.Equal(t, fresh.Choices(), reborn.Choices())
	}
}

func TestJITSpilledTape(t *testing.T) {
	// Deep expression under the JIT's 12-register budget: loads and stores
	// round-trip through the heap scratch buffer.
	ctx := expr.NewContext()
	x := ctx.X()
	nodes := make([]expr.Node, 0, 30)
	for i := 0; i < 30; i++ {
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
	v := expr.NewView(ctx, nodes[0])

	jt, err := carve.BuildTape(v, carve.NewConfig())
	require.NoError(t, err)
	require.Positive(t, jt.SlotCount())
	it, err := carve.BuildTape(v, carve.NewConfig().WithInterpreter())
	require.NoError(t, err)

	jp, err := carve.NewPointEvaluator(jt)
	require.NoError(t, err)
	ip, err := carve.NewPointEvaluator(it)
	require.NoError(t, err)
	for _, x := range []float32{0, 1, -2, 7} {
		require.Equal(t, ip.Eval(x, 0, 0, nil), jp.Eval(x, 0, 0, nil))
	}
}
