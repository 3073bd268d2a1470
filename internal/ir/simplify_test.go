package ir

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/expr"
)

func lower(t *testing.T, ctx *expr.Context, root expr.Node) *Program {
	t.Helper()
	p, err := Lower(expr.NewView(ctx, root))
	require.NoError(t, err)
	return p
}

func TestSimplifyMinLeft(t *testing.T) {
	ctx := expr.NewContext()
	p := lower(t, ctx, ctx.Min(ctx.X(), ctx.Y()))
	require.Equal(t, 1, p.ChoiceCount)

	s := p.Simplify([]api.Choice{api.ChoiceLeft})
	require.Equal(t, 0, s.ChoiceCount)
	require.Len(t, s.Ops, 1)
	require.Equal(t, OpInput, s.Ops[0].Code)
	require.Equal(t, uint32(0), s.Ops[0].LHS) // x survives

	s = p.Simplify([]api.Choice{api.ChoiceRight})
	require.Len(t, s.Ops, 1)
	require.Equal(t, uint32(1), s.Ops[0].LHS) // y survives
}

func TestSimplifyKeepsBoth(t *testing.T) {
	ctx := expr.NewContext()
	p := lower(t, ctx, ctx.Min(ctx.X(), ctx.Y()))
	for _, c := range []api.Choice{api.ChoiceBoth, api.ChoiceUnknown} {
		s := p.Simplify([]api.Choice{c})
		require.Equal(t, 1, s.ChoiceCount)
		require.Len(t, s.Ops, len(p.Ops))
	}
}

func TestSimplifyNestedChoice(t *testing.T) {
	// min(a, max(b, c)): when the outer choice kills the max branch, the
	// inner choice op disappears with it.
	ctx := expr.NewContext()
	a, b, c := ctx.X(), ctx.Y(), ctx.Z()
	p := lower(t, ctx, ctx.Min(a, ctx.Max(b, c)))
	require.Equal(t, 2, p.ChoiceCount)

	// Trail is in tape order: the inner max comes first.
	s := p.Simplify([]api.Choice{api.ChoiceBoth, api.ChoiceLeft})
	require.Equal(t, 0, s.ChoiceCount)
	require.Len(t, s.Ops, 1)
	require.Equal(t, OpInput, s.Ops[0].Code)
	require.Equal(t, uint32(0), s.Ops[0].LHS)
}

func TestSimplifyChoiceCountMonotonic(t *testing.T) {
	ctx := expr.NewContext()
	m1 := ctx.Min(ctx.X(), ctx.Y())
	m2 := ctx.Max(m1, ctx.Z())
	p := lower(t, ctx, m2)

	s := p.Simplify([]api.Choice{api.ChoiceBoth, api.ChoiceBoth})
	require.Equal(t, p.ChoiceCount, s.ChoiceCount)

	s = p.Simplify([]api.Choice{api.ChoiceLeft, api.ChoiceBoth})
	require.Less(t, s.ChoiceCount, p.ChoiceCount)
}

func TestSimplifyEquivalence(t *testing.T) {
	// max(x - 1, y) with a trail proving the right branch dominant.
	ctx := expr.NewContext()
	p := lower(t, ctx, ctx.Max(ctx.Sub(ctx.X(), ctx.Const(1)), ctx.Y()))
	s := p.Simplify([]api.Choice{api.ChoiceRight})
	require.Len(t, s.Ops, 1)

	// Identical values on the region the trail was recorded for.
	for _, pt := range [][2]float32{{0, 0.6}, {0.25, 0.8}, {0.5, 1.0}} {
		require.Equal(t, p.EvalPoint(pt[0], pt[1], 0, nil), s.EvalPoint(pt[0], pt[1], 0, nil))
	}
}

func TestSimplifyIdenticalOperands(t *testing.T) {
	// min(x, max(x, y)) where the max collapses to its left side leaves
	// min(x, x), which folds away entirely.
	ctx := expr.NewContext()
	x := ctx.X()
	p := lower(t, ctx, ctx.Min(x, ctx.Max(x, ctx.Y())))
	require.Equal(t, 2, p.ChoiceCount)

	s := p.Simplify([]api.Choice{api.ChoiceLeft, api.ChoiceBoth})
	require.Equal(t, 0, s.ChoiceCount)
	require.Len(t, s.Ops, 1)
}

func TestSimplifyConstRoot(t *testing.T) {
	// min(const, x) collapsing left degenerates to a single-const tape,
	// still well-formed.
	ctx := expr.NewContext()
	p := lower(t, ctx, ctx.Min(ctx.Const(2), ctx.X()))
	s := p.Simplify([]api.Choice{api.ChoiceLeft})
	require.Len(t, s.Ops, 1)
	require.Equal(t, OpConst, s.Ops[0].Code)
	require.Equal(t, float32(2), s.Ops[0].Imm)
}

func TestSimplifyIdempotent(t *testing.T) {
	ctx := expr.NewContext()
	m1 := ctx.Min(ctx.X(), ctx.Y())
	p := lower(t, ctx, ctx.Max(m1, ctx.Z()))

	s1 := p.Simplify([]api.Choice{api.ChoiceLeft, api.ChoiceBoth})
	s2 := s1.Simplify([]api.Choice{api.ChoiceBoth})
	require.Equal(t, s1.Ops, s2.Ops)
	require.Equal(t, s1.ChoiceCount, s2.ChoiceCount)
}

func TestSimplifyTrailLengthPanics(t *testing.T) {
	ctx := expr.NewContext()
	p := lower(t, ctx, ctx.Min(ctx.X(), ctx.Y()))
	require.Panics(t, func() { p.Simplify(nil) })
}
