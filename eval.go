package carve

import (
	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/internal/engine"
)

// Storage is the reclaimable resource bundle of a discarded evaluator: its
// executable mapping and scratch. Passing it to a New*EvaluatorWithStorage
// constructor of the same mode amortizes the mmap/mprotect/icache cost of
// building evaluators in a tight render loop. The zero value is valid and
// means "allocate fresh".
type Storage struct {
	s engine.Storage
}

// PointEvaluator evaluates a tape at single points.
type PointEvaluator struct {
	tape *Tape
	k    engine.PointKernel
}

// NewPointEvaluator returns a point evaluator for the tape.
func NewPointEvaluator(t *Tape) (*PointEvaluator, error) {
	return NewPointEvaluatorWithStorage(t, Storage{})
}

// NewPointEvaluatorWithStorage returns a point evaluator reusing donated
// storage.
func NewPointEvaluatorWithStorage(t *Tape, s Storage) (*PointEvaluator, error) {
	k, err := newPointKernel(t, s.s)
	if err != nil {
		return nil, err
	}
	return &PointEvaluator{tape: t, k: k}, nil
}

// Eval evaluates the tape at (x, y, z). vars must have exactly the tape's
// variable count (nil for none); anything else is a caller bug and panics.
func (e *PointEvaluator) Eval(x, y, z float32, vars []float32) float32 {
	e.tape.checkVars(vars)
	return e.k.EvalPoint(x, y, z, vars)
}

// Take relinquishes the evaluator's storage for reuse. It returns false if
// the storage is no longer uniquely owned; the evaluator is unusable
// afterwards.
func (e *PointEvaluator) Take() (Storage, bool) {
	s, ok := e.k.Take()
	return Storage{s: s}, ok
}

// IntervalEvaluator evaluates a tape over axis-aligned regions, maintaining
// the choice trail that drives tape simplification.
type IntervalEvaluator struct {
	tape     *Tape
	k        engine.IntervalKernel
	choices  []api.Choice
	simplify bool
}

// NewIntervalEvaluator returns an interval evaluator for the tape.
func NewIntervalEvaluator(t *Tape) (*IntervalEvaluator, error) {
	return NewIntervalEvaluatorWithStorage(t, Storage{})
}

// NewIntervalEvaluatorWithStorage returns an interval evaluator reusing
// donated storage.
func NewIntervalEvaluatorWithStorage(t *Tape, s Storage) (*IntervalEvaluator, error) {
	k, err := newIntervalKernel(t, s.s)
	if err != nil {
		return nil, err
	}
	return &IntervalEvaluator{
		tape:    t,
		k:       k,
		choices: make([]api.Choice, t.ChoiceCount()),
	}, nil
}

func (e *IntervalEvaluator) resetChoices() {
	for i := range e.choices {
		e.choices[i] = api.ChoiceUnknown
	}
	e.simplify = false
}

// Eval evaluates the tape over X×Y×Z, resetting and re-recording the choice
// trail.
func (e *IntervalEvaluator) Eval(x, y, z Interval, vars []float32) Interval {
	e.tape.checkVars(vars)
	e.resetChoices()
	return e.k.EvalInterval(x, y, z, vars, e.choices, &e.simplify)
}

// EvalSubdiv evaluates with recursive bisection of the longest axis, depth
// halvings deep, and unions the partial results: tighter bounds at the cost
// of 2^depth leaf evaluations. The choice trail is reset once at the top
// and accumulates across all leaves, so a following Simplify remains valid
// for the whole region. Depth 0 is identical to Eval.
func (e *IntervalEvaluator) EvalSubdiv(x, y, z Interval, vars []float32, depth int) Interval {
	e.tape.checkVars(vars)
	e.resetChoices()
	return e.evalSubdiv(x, y, z, vars, depth)
}

func (e *IntervalEvaluator) evalSubdiv(x, y, z Interval, vars []float32, depth int) Interval {
	if depth <= 0 {
		return e.k.EvalInterval(x, y, z, vars, e.choices, &e.simplify)
	}
	dx, dy, dz := x.Width(), y.Width(), z.Width()
	var a, b Interval
	switch {
	case dx >= dy && dx >= dz:
		mid := x.Lower + dx/2
		a = e.evalSubdiv(Interval{Lower: x.Lower, Upper: mid}, y, z, vars, depth-1)
		b = e.evalSubdiv(Interval{Lower: mid, Upper: x.Upper}, y, z, vars, depth-1)
	case dy >= dz:
		mid := y.Lower + dy/2
		a = e.evalSubdiv(x, Interval{Lower: y.Lower, Upper: mid}, z, vars, depth-1)
		b = e.evalSubdiv(x, Interval{Lower: mid, Upper: y.Upper}, z, vars, depth-1)
	default:
		mid := z.Lower + dz/2
		a = e.evalSubdiv(x, y, Interval{Lower: z.Lower, Upper: mid}, vars, depth-1)
		b = e.evalSubdiv(x, y, Interval{Lower: mid, Upper: z.Upper}, vars, depth-1)
	}
	return unionInterval(a, b)
}

// unionInterval merges bisection halves. A NaN half bounds nothing, so it
// makes the union NaN as well; dropping it would let a deeper subdivision
// report bounds outside a shallower one.
func unionInterval(a, b Interval) Interval {
	if a.IsNaN() {
		return a
	}
	if b.IsNaN() {
		return b
	}
	lo, hi := a.Lower, a.Upper
	if b.Lower < lo {
		lo = b.Lower
	}
	if b.Upper > hi {
		hi = b.Upper
	}
	return Interval{Lower: lo, Upper: hi}
}

// SimplifyRequested reports whether the last evaluation observed at least
// one Left or Right choice, i.e. whether Simplify would shrink the tape.
func (e *IntervalEvaluator) SimplifyRequested() bool { return e.simplify }

// Choices returns a copy of the current choice trail.
func (e *IntervalEvaluator) Choices() []Choice {
	out := make([]Choice, len(e.choices))
	copy(out, e.choices)
	return out
}

// Simplify rewrites the tape under the current choice trail: on the region
// the trail was recorded over, the result computes the same values with no
// more (and usually fewer) choice ops. The new tape is scheduled under the
// same register budget.
func (e *IntervalEvaluator) Simplify() (*Tape, error) {
	return e.SimplifyWithRegisterLimit(e.tape.t.RegLimit)
}

// SimplifyWithRegisterLimit is Simplify under a different register budget,
// for handing the residual tape to a different evaluator family.
func (e *IntervalEvaluator) SimplifyWithRegisterLimit(regLimit uint8) (*Tape, error) {
	return e.tape.simplified(e.choices, regLimit)
}

// Take relinquishes the evaluator's storage for reuse.
func (e *IntervalEvaluator) Take() (Storage, bool) {
	s, ok := e.k.Take()
	return Storage{s: s}, ok
}

// FloatSliceEvaluator evaluates a tape across slices of points in one call.
type FloatSliceEvaluator struct {
	tape *Tape
	k    engine.FloatSliceKernel
}

// NewFloatSliceEvaluator returns a float-slice evaluator for the tape.
func NewFloatSliceEvaluator(t *Tape) (*FloatSliceEvaluator, error) {
	return NewFloatSliceEvaluatorWithStorage(t, Storage{})
}

// NewFloatSliceEvaluatorWithStorage returns a float-slice evaluator reusing
// donated storage.
func NewFloatSliceEvaluatorWithStorage(t *Tape, s Storage) (*FloatSliceEvaluator, error) {
	k, err := newFloatSliceKernel(t, s.s)
	if err != nil {
		return nil, err
	}
	return &FloatSliceEvaluator{tape: t, k: k}, nil
}

// Eval evaluates the tape at every (xs[i], ys[i], zs[i]) into out, which it
// returns (allocating when out is short). The coordinate slices must share
// one length.
func (e *FloatSliceEvaluator) Eval(xs, ys, zs []float32, vars []float32, out []float32) []float32 {
	e.tape.checkVars(vars)
	if len(ys) != len(xs) || len(zs) != len(xs) {
		panic("carve: coordinate slices have mismatched lengths")
	}
	if len(out) < len(xs) {
		out = make([]float32, len(xs))
	}
	e.k.EvalSlice(xs, ys, zs, out[:len(xs)], vars)
	return out[:len(xs)]
}

// Take relinquishes the evaluator's storage for reuse.
func (e *FloatSliceEvaluator) Take() (Storage, bool) {
	s, ok := e.k.Take()
	return Storage{s: s}, ok
}

// GradEvaluator evaluates a tape's value and spatial partial derivatives.
type GradEvaluator struct {
	tape *Tape
	k    engine.GradKernel
}

// NewGradEvaluator returns a gradient evaluator for the tape.
func NewGradEvaluator(t *Tape) (*GradEvaluator, error) {
	return NewGradEvaluatorWithStorage(t, Storage{})
}

// NewGradEvaluatorWithStorage returns a gradient evaluator reusing donated
// storage.
func NewGradEvaluatorWithStorage(t *Tape, s Storage) (*GradEvaluator, error) {
	k, err := newGradKernel(t, s.s)
	if err != nil {
		return nil, err
	}
	return &GradEvaluator{tape: t, k: k}, nil
}

// Eval evaluates the tape and its gradient at (x, y, z).
func (e *GradEvaluator) Eval(x, y, z float32, vars []float32) Grad {
	e.tape.checkVars(vars)
	return e.k.EvalGrad(x, y, z, vars)
}

// Take relinquishes the evaluator's storage for reuse.
func (e *GradEvaluator) Take() (Storage, bool) {
	s, ok := e.k.Take()
	return Storage{s: s}, ok
}
