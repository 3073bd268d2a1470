// Package carve evaluates implicit scalar functions of space — expressions
// built from arithmetic, a small set of transcendental primitives, and
// piecewise min/max — over vast numbers of sample points, for rendering 2D
// slices and 3D surfaces of their zero-sets.
//
// The pipeline: an expression DAG (package expr, or anything implementing
// api.Expr) is lowered to an SSA tape, register-scheduled under the active
// evaluator family's budget, and compiled to native code on supported
// platforms (a portable interpreter backs everything else). Interval
// evaluation over a region records a choice trail — which side of each
// min/max the bounds prove redundant there — and Simplify turns that trail
// into a strictly smaller tape equivalent on the region, which is what
// makes recursive rendering cheap.
//
//	ctx := expr.NewContext()
//	x, y := ctx.X(), ctx.Y()
//	shape := ctx.Sub(ctx.Sqrt(ctx.Add(ctx.Square(x), ctx.Square(y))), ctx.Const(1))
//	tape, _ := carve.BuildTape(expr.NewView(ctx, shape), carve.NewConfig())
//	ev, _ := carve.NewIntervalEvaluator(tape)
//	out := ev.Eval(api.NewInterval(-0.5, 0.5), api.NewInterval(-0.5, 0.5), api.PointInterval(0), nil)
//
// Tapes are immutable and freely shared; evaluators own their scratch and
// executable mappings, so concurrency is per-evaluator (one per rendering
// worker), never per-tape.
package carve

import (
	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/internal/ir"
	"github.com/implicitcad/carve/internal/regalloc"
)

// Interval is re-exported from api for convenience.
type Interval = api.Interval

// Choice is re-exported from api for convenience.
type Choice = api.Choice

// Grad is re-exported from api for convenience.
type Grad = api.Grad

// ErrCyclicExpr is returned by BuildTape for expressions violating the
// api.Expr topology contract.
var ErrCyclicExpr = ir.ErrCyclicExpr

// ErrRegisterLimit is returned when a tape cannot be scheduled under the
// configured register budget.
var ErrRegisterLimit = regalloc.ErrRegisterLimit

// Tape is an immutable, register-scheduled evaluation program. It is the
// unit evaluators compile and the simplifier rewrites; a tape never changes
// after construction, so any number of evaluators may share one.
type Tape struct {
	t   *ir.Tape
	cfg Config
}

// BuildTape lowers an expression to a register-scheduled tape for the
// evaluator family selected by cfg.
func BuildTape(e api.Expr, cfg Config) (*Tape, error) {
	p, err := ir.Lower(e)
	if err != nil {
		return nil, err
	}
	t, err := regalloc.Allocate(p, cfg.registerLimit(), true)
	if err != nil {
		return nil, err
	}
	return &Tape{t: t, cfg: cfg}, nil
}

// Len returns the number of tape operations, including loads and stores.
func (t *Tape) Len() int { return len(t.t.Ops) }

// ChoiceCount returns the number of choice-bearing (min/max) operations,
// which is also the choice-trail length of the tape's interval evaluators.
func (t *Tape) ChoiceCount() int { return t.t.ChoiceCount }

// VarCount returns the required length of variable-binding slices.
func (t *Tape) VarCount() int { return t.t.VarCount }

// SlotCount returns the number of spill slots the tape addresses.
func (t *Tape) SlotCount() int { return t.t.SlotCount }

// RegisterLimit returns the budget the tape was scheduled under.
func (t *Tape) RegisterLimit() uint8 { return t.t.RegLimit }

// simplified re-applies a choice trail to the tape's SSA form and schedules
// the residual program, reusing the lowering-free path that makes
// per-region simplification cheap.
func (t *Tape) simplified(choices []Choice, regLimit uint8) (*Tape, error) {
	p := t.t.SSA.Simplify(choices)
	nt, err := regalloc.Allocate(p, regLimit, true)
	if err != nil {
		return nil, err
	}
	return &Tape{t: nt, cfg: t.cfg}, nil
}

func (t *Tape) checkVars(vars []float32) {
	if len(vars) != t.t.VarCount {
		panic("carve: variable binding length does not match tape variable count")
	}
}
