package ir

import (
	"errors"
	"fmt"

	"github.com/implicitcad/carve/api"
)

// ErrCyclicExpr is returned when an expression violates the api.Expr
// topology contract (an operand index not strictly below its consumer).
// Front-ends build acyclic graphs by construction, so this always indicates
// a broken front-end rather than bad user input.
var ErrCyclicExpr = errors.New("ir: expression operands are not topologically ordered")

// Lower converts an expression DAG into SSA tape form.
//
// Lowering walks only the nodes reachable from the root, deduplication being
// the front-end's job. Binary arithmetic with a constant operand fuses into
// the immediate variants (with commutative operands swapped so the constant
// lands on the right); min and max keep both operands in registers so their
// choice semantics survive. Constant operands consumed only through fusion
// are never emitted.
func Lower(e api.Expr) (*Program, error) {
	n := e.Len()
	root := e.Root()
	if root < 0 || root >= n {
		return nil, fmt.Errorf("ir: root %d out of range [0, %d)", root, n)
	}

	// Validate topology up front so the liveness walk below can trust
	// operand ordering.
	for i := 0; i < n; i++ {
		op := e.Op(i)
		lhs, rhs := e.Operands(i)
		switch op.Arity() {
		case 2:
			if rhs >= i || rhs < 0 {
				return nil, fmt.Errorf("%w: node %d", ErrCyclicExpr, i)
			}
			fallthrough
		case 1:
			if lhs >= i || lhs < 0 {
				return nil, fmt.Errorf("%w: node %d", ErrCyclicExpr, i)
			}
		case 0:
			if op == api.ExprInput && (lhs < 0 || lhs > 2) {
				return nil, fmt.Errorf("ir: node %d reads input axis %d", i, lhs)
			}
		}
	}

	// Mark reachable nodes, skipping constant operands that will be fused
	// into their consumers.
	live := make([]bool, n)
	live[root] = true
	for i := root; i >= 0; i-- {
		if !live[i] {
			continue
		}
		op := e.Op(i)
		lhs, rhs := e.Operands(i)
		switch op.Arity() {
		case 1:
			live[lhs] = true
		case 2:
			fusedLHS, fusedRHS := fusedOperands(e, op, lhs, rhs)
			live[lhs] = live[lhs] || !fusedLHS
			live[rhs] = live[rhs] || !fusedRHS
		}
	}

	p := &Program{VarCount: e.VarCount()}
	vreg := make([]uint32, n)
	for i := 0; i <= root; i++ {
		if !live[i] {
			continue
		}
		out := uint32(len(p.Ops))
		vreg[i] = out
		op := e.Op(i)
		lhs, rhs := e.Operands(i)
		switch op {
		case api.ExprInput:
			p.Ops = append(p.Ops, Op{Code: OpInput, Out: out, LHS: uint32(lhs)})
		case api.ExprVar:
			p.Ops = append(p.Ops, Op{Code: OpVar, Out: out, LHS: uint32(lhs)})
		case api.ExprConst:
			p.Ops = append(p.Ops, Op{Code: OpConst, Out: out, Imm: e.Imm(i)})
		case api.ExprNeg, api.ExprAbs, api.ExprRecip, api.ExprSqrt, api.ExprSquare:
			p.Ops = append(p.Ops, Op{Code: unaryOpcode(op), Out: out, LHS: vreg[lhs]})
		case api.ExprMin, api.ExprMax:
			code := OpMin
			if op == api.ExprMax {
				code = OpMax
			}
			p.ChoiceCount++
			p.Ops = append(p.Ops, Op{Code: code, Out: out, LHS: vreg[lhs], RHS: vreg[rhs]})
		default:
			p.Ops = append(p.Ops, lowerArith(e, op, out, vreg, lhs, rhs))
		}
	}
	return p, nil
}

// fusedOperands reports which operands of a binary node disappear into an
// immediate variant.
func fusedOperands(e api.Expr, op api.ExprOp, lhs, rhs int) (fuseLHS, fuseRHS bool) {
	if op == api.ExprMin || op == api.ExprMax {
		return false, false
	}
	lconst := e.Op(lhs) == api.ExprConst
	rconst := e.Op(rhs) == api.ExprConst
	switch {
	case lconst && rconst:
		return true, true // folded to a constant
	case rconst:
		return false, true
	case lconst && (op == api.ExprAdd || op == api.ExprMul):
		return true, false // commute the constant to the right
	}
	return false, false
}

func lowerArith(e api.Expr, op api.ExprOp, out uint32, vreg []uint32, lhs, rhs int) Op {
	fuseLHS, fuseRHS := fusedOperands(e, op, lhs, rhs)
	switch {
	case fuseLHS && fuseRHS:
		return Op{Code: OpConst, Out: out, Imm: foldArith(op, e.Imm(lhs), e.Imm(rhs))}
	case fuseRHS:
		return Op{Code: immOpcode(op), Out: out, LHS: vreg[lhs], Imm: e.Imm(rhs)}
	case fuseLHS:
		return Op{Code: immOpcode(op), Out: out, LHS: vreg[rhs], Imm: e.Imm(lhs)}
	default:
		return Op{Code: regOpcode(op), Out: out, LHS: vreg[lhs], RHS: vreg[rhs]}
	}
}

func foldArith(op api.ExprOp, a, b float32) float32 {
	switch op {
	case api.ExprAdd:
		return a + b
	case api.ExprSub:
		return a - b
	case api.ExprMul:
		return a * b
	default:
		return a / b
	}
}

func unaryOpcode(op api.ExprOp) Opcode {
	switch op {
	case api.ExprNeg:
		return OpNeg
	case api.ExprAbs:
		return OpAbs
	case api.ExprRecip:
		return OpRecip
	case api.ExprSqrt:
		return OpSqrt
	default:
		return OpSquare
	}
}

func regOpcode(op api.ExprOp) Opcode {
	switch op {
	case api.ExprAdd:
		return OpAdd
	case api.ExprSub:
		return OpSub
	case api.ExprMul:
		return OpMul
	default:
		return OpDiv
	}
}

func immOpcode(op api.ExprOp) Opcode {
	switch op {
	case api.ExprAdd:
		return OpAddImm
	case api.ExprSub:
		return OpSubImm
	case api.ExprMul:
		return OpMulImm
	default:
		return OpDivImm
	}
}
