// Package asm defines the assembler contract shared by every evaluator
// backend, and the executable code segment the native backends emit into.
//
// A backend implements one Assembler per evaluation mode (point, interval,
// float slice, gradient); the op-dispatch loop in BuildFunction is
// mode-agnostic, so the four modes differ only in the instructions (or
// interpreter records) each Build method produces.
package asm

import (
	"fmt"

	"github.com/implicitcad/carve/internal/ir"
)

// Reg is a physical register of the evaluator family being assembled,
// numbered 0..RegLimit-1.
type Reg uint8

// Assembler is implemented once per evaluation mode by each backend. The
// native backends emit machine instructions; the interpreter backend
// appends tagged records to a script and interprets them later, which makes
// it both the portable fallback and the reference the JIT is tested
// against.
//
// LoadImm materializes a float constant into the backend's reserved
// immediate register and returns it, so immediate-fused tape ops reuse the
// plain register Build methods. Dst may alias any operand register.
type Assembler interface {
	// Init begins a function with the given spill-slot requirement.
	Init(slotCount int)

	BuildInput(dst Reg, axis uint32)
	BuildVar(dst Reg, id uint32)
	BuildCopy(dst, src Reg)

	BuildNeg(dst, lhs Reg)
	BuildAbs(dst, lhs Reg)
	BuildRecip(dst, lhs Reg)
	BuildSqrt(dst, lhs Reg)
	BuildSquare(dst, lhs Reg)

	BuildAdd(dst, lhs, rhs Reg)
	BuildSub(dst, lhs, rhs Reg)
	BuildMul(dst, lhs, rhs Reg)
	BuildDiv(dst, lhs, rhs Reg)
	// BuildMin and BuildMax receive the op's index into the choice trail.
	// Backends without choice output (every mode but interval) ignore it.
	BuildMin(dst, lhs, rhs Reg, choice int)
	BuildMax(dst, lhs, rhs Reg, choice int)
	// BuildFma accumulates lhs*rhs into dst.
	BuildFma(dst, lhs, rhs Reg)

	LoadImm(imm float32) Reg
	BuildLoad(dst Reg, slot uint32)
	BuildStore(slot uint32, src Reg)

	// Finalize ends the function, arranging for the value of result to be
	// the return value.
	Finalize(result Reg) error
}

// BuildFunction drives a register-scheduled tape through an assembler.
func BuildFunction(a Assembler, t *ir.Tape) error {
	a.Init(t.SlotCount)
	choice := 0
	for _, op := range t.Ops {
		dst := Reg(op.Out)
		lhs := Reg(op.LHS)
		rhs := Reg(op.RHS)
		switch op.Code {
		case ir.OpInput:
			a.BuildInput(dst, op.LHS)
		case ir.OpVar:
			a.BuildVar(dst, op.LHS)
		case ir.OpConst:
			a.BuildCopy(dst, a.LoadImm(op.Imm))
		case ir.OpCopy:
			a.BuildCopy(dst, lhs)
		case ir.OpNeg:
			a.BuildNeg(dst, lhs)
		case ir.OpAbs:
			a.BuildAbs(dst, lhs)
		case ir.OpRecip:
			a.BuildRecip(dst, lhs)
		case ir.OpSqrt:
			a.BuildSqrt(dst, lhs)
		case ir.OpSquare:
			a.BuildSquare(dst, lhs)
		case ir.OpAdd:
			a.BuildAdd(dst, lhs, rhs)
		case ir.OpSub:
			a.BuildSub(dst, lhs, rhs)
		case ir.OpMul:
			a.BuildMul(dst, lhs, rhs)
		case ir.OpDiv:
			a.BuildDiv(dst, lhs, rhs)
		case ir.OpMin:
			a.BuildMin(dst, lhs, rhs, choice)
			choice++
		case ir.OpMax:
			a.BuildMax(dst, lhs, rhs, choice)
			choice++
		case ir.OpAddImm:
			a.BuildAdd(dst, lhs, a.LoadImm(op.Imm))
		case ir.OpSubImm:
			a.BuildSub(dst, lhs, a.LoadImm(op.Imm))
		case ir.OpMulImm:
			a.BuildMul(dst, lhs, a.LoadImm(op.Imm))
		case ir.OpDivImm:
			a.BuildDiv(dst, lhs, a.LoadImm(op.Imm))
		case ir.OpFma:
			a.BuildFma(dst, lhs, rhs)
		case ir.OpFmaImm:
			a.BuildFma(dst, lhs, a.LoadImm(op.Imm))
		case ir.OpLoad:
			a.BuildLoad(dst, op.LHS)
		case ir.OpStore:
			a.BuildStore(op.Out, lhs)
		default:
			return fmt.Errorf("asm: unknown opcode %d", op.Code)
		}
	}
	return a.Finalize(Reg(t.ResultReg))
}
