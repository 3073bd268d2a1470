package ir

import (
	"math"

	"github.com/implicitcad/carve/internal/moremath"
)

// Program is an expression in SSA tape form: a forward-ordered list of
// operations where each op defines the virtual register equal to its index
// in Ops, and every operand refers to an earlier op. The final op computes
// the function result.
//
// Programs are immutable once built. A Program is the unit the register
// allocator schedules and the simplifier rewrites.
type Program struct {
	Ops []Op

	// VarCount is the required length of variable-binding slices.
	VarCount int
	// ChoiceCount is the number of choice-bearing ops (min/max), which is
	// also the length of a choice trail for this program.
	ChoiceCount int
}

// Root returns the virtual register holding the function result.
func (p *Program) Root() uint32 { return uint32(len(p.Ops) - 1) }

// EvalPoint interprets the SSA form directly at a single point. It is the
// semantic reference for every other evaluator: slow, obvious, and with no
// register scheduling in the way.
func (p *Program) EvalPoint(x, y, z float32, vars []float32) float32 {
	regs := make([]float32, len(p.Ops))
	for i, op := range p.Ops {
		var v float32
		switch op.Code {
		case OpInput:
			switch op.LHS {
			case 0:
				v = x
			case 1:
				v = y
			default:
				v = z
			}
		case OpVar:
			v = vars[op.LHS]
		case OpConst:
			v = op.Imm
		case OpCopy:
			v = regs[op.LHS]
		case OpNeg:
			v = -regs[op.LHS]
		case OpAbs:
			v = moremath.Abs32(regs[op.LHS])
		case OpRecip:
			v = 1 / regs[op.LHS]
		case OpSqrt:
			v = float32(math.Sqrt(float64(regs[op.LHS])))
		case OpSquare:
			v = regs[op.LHS] * regs[op.LHS]
		case OpAdd:
			v = regs[op.LHS] + regs[op.RHS]
		case OpSub:
			v = regs[op.LHS] - regs[op.RHS]
		case OpMul:
			v = regs[op.LHS] * regs[op.RHS]
		case OpDiv:
			v = regs[op.LHS] / regs[op.RHS]
		case OpMin:
			v = moremath.Min32(regs[op.LHS], regs[op.RHS])
		case OpMax:
			v = moremath.Max32(regs[op.LHS], regs[op.RHS])
		case OpAddImm:
			v = regs[op.LHS] + op.Imm
		case OpSubImm:
			v = regs[op.LHS] - op.Imm
		case OpMulImm:
			v = regs[op.LHS] * op.Imm
		case OpDivImm:
			v = regs[op.LHS] / op.Imm
		default:
			// Fma/FmaImm/Load/Store never appear in SSA form.
			panic("ir: non-SSA opcode " + op.Code.String())
		}
		regs[i] = v
	}
	return regs[p.Root()]
}
