// Package api includes constants and types shared between the carve public
// surface and the internal evaluation engines.
//
// Note: This is a dependency-free package which internal packages import, so
// that expression front-ends and evaluation back-ends can agree on value
// types without importing each other.
package api

import "math"

// ExprOp is the operation of one node in an expression DAG.
//
// Only operations that an expression front-end can produce appear here;
// tape-level operations (immediate fusion, loads and stores, copies) are an
// internal concern of the lowering pipeline.
type ExprOp uint8

const (
	// ExprInput reads one of the three spatial inputs. The first operand is
	// the axis: 0 for X, 1 for Y, 2 for Z.
	ExprInput ExprOp = iota
	// ExprVar reads a caller-supplied variable binding. The first operand is
	// the variable id.
	ExprVar
	// ExprConst is a floating-point constant, stored as the node immediate.
	ExprConst
	ExprNeg
	ExprAbs
	ExprRecip
	ExprSqrt
	ExprSquare
	ExprAdd
	ExprSub
	ExprMul
	ExprDiv
	ExprMin
	ExprMax
)

// String implements fmt.Stringer.
func (op ExprOp) String() string {
	if int(op) < len(exprOpNames) {
		return exprOpNames[op]
	}
	return "invalid"
}

var exprOpNames = [...]string{
	"input", "var", "const",
	"neg", "abs", "recip", "sqrt", "square",
	"add", "sub", "mul", "div", "min", "max",
}

// Arity returns how many node operands op consumes.
func (op ExprOp) Arity() int {
	switch {
	case op <= ExprConst:
		return 0
	case op <= ExprSquare:
		return 1
	default:
		return 2
	}
}

// Expr is the contract between an expression front-end and the lowering
// pipeline. The core only ever reads it.
//
// Nodes are identified by dense indices in [0, Len()). A well-formed
// expression is topologically ordered: every operand index is strictly
// smaller than the node that consumes it. Lowering verifies this and fails
// hard on violations, so cyclic graphs cannot reach evaluation.
type Expr interface {
	// Len returns the number of nodes.
	Len() int
	// Root returns the index of the node whose value is the function result.
	Root() int
	// Op returns the operation of node i.
	Op(i int) ExprOp
	// Operands returns the operand indices of node i. For ExprInput the
	// first operand is the axis, for ExprVar it is the variable id; unary
	// operations ignore the second result.
	Operands(i int) (lhs, rhs int)
	// Imm returns the immediate of node i (meaningful for ExprConst only).
	Imm(i int) float32
	// VarCount returns the number of distinct ExprVar ids, which is also the
	// required length of every variable-binding slice.
	VarCount() int
}

// Choice is the two-bit outcome of interval-evaluating a min or max: which
// side the interval bounds prove dominant, if any. Choices accumulate by
// bitwise OR across evaluations of the same trail.
type Choice uint8

const (
	// ChoiceUnknown means the operation has not been evaluated.
	ChoiceUnknown Choice = 0
	// ChoiceLeft means only the left-hand side can affect the result.
	ChoiceLeft Choice = 1
	// ChoiceRight means only the right-hand side can affect the result.
	ChoiceRight Choice = 2
	// ChoiceBoth means neither side could be proven redundant.
	ChoiceBoth Choice = 3
)

// String implements fmt.Stringer.
func (c Choice) String() string {
	switch c {
	case ChoiceUnknown:
		return "unknown"
	case ChoiceLeft:
		return "left"
	case ChoiceRight:
		return "right"
	case ChoiceBoth:
		return "both"
	}
	return "invalid"
}

// Interval is a closed range of float32 values with conservative bounds: the
// true value of the underlying function is always contained, though bounds
// are not rounding-correct.
//
// The empty (invalid) interval is represented by NaN in both fields and is
// produced by operations evaluated outside their domain, e.g. the square
// root of a strictly negative interval.
type Interval struct {
	Lower float32
	Upper float32
}

// NewInterval returns the interval [lower, upper].
//
// It panics unless upper >= lower or both bounds are NaN: a backwards
// interval is a programming error, not a data condition.
func NewInterval(lower, upper float32) Interval {
	if !(upper >= lower) && !(isNaN32(lower) && isNaN32(upper)) {
		panic("api: malformed interval: upper < lower")
	}
	return Interval{Lower: lower, Upper: upper}
}

// NaNInterval returns the empty interval.
func NaNInterval() Interval {
	nan := float32(math.NaN())
	return Interval{Lower: nan, Upper: nan}
}

// PointInterval returns the degenerate interval [v, v].
func PointInterval(v float32) Interval {
	return Interval{Lower: v, Upper: v}
}

// IsNaN reports whether i is the empty interval.
func (i Interval) IsNaN() bool {
	return isNaN32(i.Lower) || isNaN32(i.Upper)
}

// Contains reports whether v is inside the interval. The empty interval
// permits any value, matching the "NaN bounds mean anything" reading used by
// the soundness property.
func (i Interval) Contains(v float32) bool {
	if i.IsNaN() || isNaN32(v) {
		return true
	}
	return v >= i.Lower && v <= i.Upper
}

// In reports whether i is contained in outer, treating NaN bounds on outer
// as unconstrained.
func (i Interval) In(outer Interval) bool {
	if outer.IsNaN() {
		return true
	}
	if i.IsNaN() {
		return false
	}
	return i.Lower >= outer.Lower && i.Upper <= outer.Upper
}

// Mid returns the midpoint of the interval.
func (i Interval) Mid() float32 {
	return i.Lower + (i.Upper-i.Lower)/2
}

// Width returns the extent of the interval.
func (i Interval) Width() float32 {
	return i.Upper - i.Lower
}

func isNaN32(f float32) bool {
	return f != f
}

// Grad is the result of a gradient evaluation: the function value and its
// partial derivatives along the three spatial axes.
type Grad struct {
	V  float32
	Dx float32
	Dy float32
	Dz float32
}
