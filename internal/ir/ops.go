// Package ir defines the operation set shared by every stage of the
// evaluation pipeline: the SSA program produced by lowering an expression,
// the register-scheduled tape produced by allocation, and the choice-driven
// simplifier that rewrites programs between rendering passes.
package ir

import "fmt"

// Opcode identifies a tape operation. The set is closed and small on
// purpose: tapes stay tightly packed and evaluators dispatch through a flat
// switch instead of virtual calls.
type Opcode uint8

const (
	// OpInput reads spatial input LHS (0=X, 1=Y, 2=Z) into Out.
	OpInput Opcode = iota
	// OpVar reads variable binding LHS into Out.
	OpVar
	// OpConst materializes Imm into Out.
	OpConst
	// OpCopy moves LHS into Out.
	OpCopy

	OpNeg
	OpAbs
	OpRecip
	OpSqrt
	OpSquare

	OpAdd
	OpSub
	OpMul
	OpDiv
	// OpMin and OpMax are the only choice-bearing operations: interval
	// evaluation of either writes a Choice to the trail.
	OpMin
	OpMax

	// Immediate-fused arithmetic. The immediate is always the right-hand
	// operand; min and max are never fused because their choice semantics
	// require both operands in registers.
	OpAddImm
	OpSubImm
	OpMulImm
	OpDivImm

	// Fused multiply-add optimization targets: Out accumulates LHS*RHS
	// (or LHS*Imm). The default lowering does not emit them; they exist for
	// peephole passes and are supported by every backend.
	OpFma
	OpFmaImm

	// OpLoad reads spill slot LHS into Out. OpStore writes register LHS to
	// spill slot Out. Both are introduced by register allocation only.
	OpLoad
	OpStore
)

var opcodeNames = [...]string{
	"input", "var", "const", "copy",
	"neg", "abs", "recip", "sqrt", "square",
	"add", "sub", "mul", "div", "min", "max",
	"add-imm", "sub-imm", "mul-imm", "div-imm",
	"fma", "fma-imm",
	"load", "store",
}

// String implements fmt.Stringer.
func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "invalid"
}

// IsChoice reports whether the operation writes to the choice trail.
func (op Opcode) IsChoice() bool { return op == OpMin || op == OpMax }

// HasImm reports whether the operation carries a meaningful immediate.
func (op Opcode) HasImm() bool {
	switch op {
	case OpConst, OpAddImm, OpSubImm, OpMulImm, OpDivImm, OpFmaImm:
		return true
	}
	return false
}

// RegOperands reports which of LHS and RHS name register (or virtual-slot)
// operands.
func (op Opcode) RegOperands() (lhs, rhs bool) {
	switch op {
	case OpInput, OpVar, OpConst, OpLoad:
		return false, false
	case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax, OpFma:
		return true, true
	default:
		// copy, unaries, imm-fused arithmetic, store
		return true, false
	}
}

// Op is one tape operation. Field meaning depends on the opcode:
//
//	Out  destination register/virtual slot (spill slot for OpStore)
//	LHS  first register operand; axis for OpInput, variable id for OpVar,
//	     spill slot for OpLoad
//	RHS  second register operand
//	Imm  immediate operand for OpConst and the *-imm variants
type Op struct {
	Code     Opcode
	Out      uint32
	LHS, RHS uint32
	Imm      float32
}

// String implements fmt.Stringer, in a compact "$dst = op $a $b" form used
// by failure messages and debugging dumps.
func (o Op) String() string {
	switch o.Code {
	case OpInput:
		return fmt.Sprintf("$%d = input %c", o.Out, "xyz"[o.LHS%3])
	case OpVar:
		return fmt.Sprintf("$%d = var %d", o.Out, o.LHS)
	case OpConst:
		return fmt.Sprintf("$%d = const %g", o.Out, o.Imm)
	case OpLoad:
		return fmt.Sprintf("$%d = load [%d]", o.Out, o.LHS)
	case OpStore:
		return fmt.Sprintf("[%d] = store $%d", o.Out, o.LHS)
	}
	lhs, rhs := o.Code.RegOperands()
	switch {
	case lhs && rhs:
		return fmt.Sprintf("$%d = %s $%d $%d", o.Out, o.Code, o.LHS, o.RHS)
	case o.Code.HasImm():
		return fmt.Sprintf("$%d = %s $%d %g", o.Out, o.Code, o.LHS, o.Imm)
	default:
		return fmt.Sprintf("$%d = %s $%d", o.Out, o.Code, o.LHS)
	}
}
