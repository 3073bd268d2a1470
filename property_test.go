package carve_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/implicitcad/carve"
	"github.com/implicitcad/carve/expr"
)

// genExpr grows a random expression bottom-up over the full opcode set,
// reusing earlier nodes so the graph shares subexpressions the way real
// shapes do.
func genExpr(rng *rand.Rand, size int) (*expr.Context, expr.Node) {
	ctx := expr.NewContext()
	nodes := []expr.Node{ctx.X(), ctx.Y(), ctx.Z(), ctx.Const(rng.Float32()*4 - 2)}
	for i := 0; i < size; i++ {
		a := nodes[rng.Intn(len(nodes))]
		b := nodes[rng.Intn(len(nodes))]
		var n expr.Node
		switch rng.Intn(12) {
		case 0:
			n = ctx.Add(a, b)
		case 1:
			n = ctx.Sub(a, b)
		case 2:
			n = ctx.Mul(a, b)
		case 3:
			n = ctx.Div(a, b)
		case 4:
			n = ctx.Min(a, b)
		case 5:
			n = ctx.Max(a, b)
		case 6:
			n = ctx.Neg(a)
		case 7:
			n = ctx.Abs(a)
		case 8:
			n = ctx.Sqrt(a)
		case 9:
			n = ctx.Square(a)
		case 10:
			n = ctx.Recip(a)
		default:
			n = ctx.Add(a, ctx.Const(rng.Float32()*4-2))
		}
		nodes = append(nodes, n)
	}
	return ctx, nodes[len(nodes)-1]
}

func randomInterval(rng *rand.Rand) carve.Interval {
	a := rng.Float32()*4 - 2
	b := a + rng.Float32()*2
	return carve.Interval{Lower: a, Upper: b}
}

func sample(rng *rand.Rand, i carve.Interval) float32 {
	return i.Lower + rng.Float32()*(i.Upper-i.Lower)
}

func eqOrBothNaN(a, b float32) bool {
	return a == b || (a != a && b != b)
}

// TestIntervalSoundness checks that for random expressions and regions, the
// interval result contains every sampled point result, with NaN bounds
// permitting anything.
func TestIntervalSoundness(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 300; iter++ {
		ctx, root := genExpr(rng, 1+rng.Intn(25))
		tape, err := carve.BuildTape(expr.NewView(ctx, root), interpConfig())
		require.NoError(t, err)

		iv, err := carve.NewIntervalEvaluator(tape)
		require.NoError(t, err)
		pt, err := carve.NewPointEvaluator(tape)
		require.NoError(t, err)

		x, y, z := randomInterval(rng), randomInterval(rng), randomInterval(rng)
		out := iv.Eval(x, y, z, nil)

		for s := 0; s < 16; s++ {
			px, py, pz := sample(rng, x), sample(rng, y), sample(rng, z)
			v := pt.Eval(px, py, pz, nil)
			require.True(t, out.Contains(v),
				"iter %d: value %v at (%v,%v,%v) outside %v", iter, v, px, py, pz, out)
		}
	}
}

// TestSimplifyPreservesValues checks the choice-correctness property: after
// an interval pass over a region, the simplified tape computes identical
// values at every sampled point of that region, and never grows its choice
// count.
func TestSimplifyPreservesValues(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for iter := 0; iter < 300; iter++ {
		ctx, root := genExpr(rng, 1+rng.Intn(25))
		tape, err := carve.BuildTape(expr.NewView(ctx, root), interpConfig())
		require.NoError(t, err)

		iv, err := carve.NewIntervalEvaluator(tape)
		require.NoError(t, err)
		x, y, z := randomInterval(rng), randomInterval(rng), randomInterval(rng)
		iv.Eval(x, y, z, nil)

		st, err := iv.Simplify()
		require.NoError(t, err)
		require.LessOrEqual(t, st.ChoiceCount(), tape.ChoiceCount())
		if iv.SimplifyRequested() {
			require.Less(t, st.ChoiceCount(), tape.ChoiceCount())
		}

		pt, err := carve.NewPointEvaluator(tape)
		require.NoError(t, err)
		ps, err := carve.NewPointEvaluator(st)
		require.NoError(t, err)
		for s := 0; s < 16; s++ {
			px, py, pz := sample(rng, x), sample(rng, y), sample(rng, z)
			a := pt.Eval(px, py, pz, nil)
			b := ps.Eval(px, py, pz, nil)
			require.True(t, eqOrBothNaN(a, b),
				"iter %d: %v != %v at (%v,%v,%v)", iter, a, b, px, py, pz)
		}
	}
}

// TestSubdivNeverLoosens checks containment across subdivision depths for
// random expressions.
func TestSubdivNeverLoosens(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for iter := 0; iter < 100; iter++ {
		ctx, root := genExpr(rng, 1+rng.Intn(15))
		tape, err := carve.BuildTape(expr.NewView(ctx, root), interpConfig())
		require.NoError(t, err)
		iv, err := carve.NewIntervalEvaluator(tape)
		require.NoError(t, err)

		x, y, z := randomInterval(rng), randomInterval(rng), randomInterval(rng)
		prev := iv.EvalSubdiv(x, y, z, nil, 0)
		for depth := 1; depth <= 3; depth++ {
			next := iv.EvalSubdiv(x, y, z, nil, depth)
			// An empty (NaN) result is vacuously contained: its bounds
			// permit anything.
			require.True(t, next.IsNaN() || next.In(prev),
				"iter %d depth %d: %v outside %v", iter, depth, next, prev)
			prev = next
		}
	}
}
