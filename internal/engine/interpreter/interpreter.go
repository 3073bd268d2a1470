// Package interpreter is the portable evaluation backend: it implements the
// assembler contract by appending tagged records to a script instead of
// emitting machine code, then walks the script with mode-specific
// arithmetic. It is both the fallback on platforms without a JIT backend
// and the semantic reference the JIT is tested against.
package interpreter

import (
	"github.com/implicitcad/carve/internal/asm"
	"github.com/implicitcad/carve/internal/ir"
)

// RegLimit is the interpreter family's register budget. It is effectively
// unbounded: tapes built for this family only spill past 255 live values.
const RegLimit = 255

// immReg is the register LoadImm materializes constants into, one past the
// allocatable file.
const immReg = asm.Reg(255)

type recKind uint8

const (
	recInput recKind = iota
	recVar
	recImm
	recCopy
	recNeg
	recAbs
	recRecip
	recSqrt
	recSquare
	recAdd
	recSub
	recMul
	recDiv
	recMin
	recMax
	recFma
	recLoad
	recStore
)

// record is one interpretable operation. aux carries the input axis,
// variable id, spill slot, or choice-trail index, depending on the kind.
type record struct {
	kind          recKind
	dst, lhs, rhs uint8
	aux           uint32
	imm           float32
}

// script is a finalized record program, the interpreter's analogue of an
// executable mapping.
type script struct {
	recs      []record
	result    uint8
	regCount  int
	slotCount int
}

// scriptAssembler implements asm.Assembler by recording.
type scriptAssembler struct {
	s script
}

func newScript(t *ir.Tape) *script {
	a := &scriptAssembler{}
	// Recording cannot fail; the contract's error path exists for native
	// backends.
	if err := asm.BuildFunction(a, t); err != nil {
		panic(err)
	}
	return &a.s
}

func (a *scriptAssembler) push(r record) {
	for _, reg := range [3]uint8{r.dst, r.lhs, r.rhs} {
		if int(reg)+1 > a.s.regCount {
			a.s.regCount = int(reg) + 1
		}
	}
	a.s.recs = append(a.s.recs, r)
}

// Init implements asm.Assembler.
func (a *scriptAssembler) Init(slotCount int) {
	a.s.slotCount = slotCount
}

// BuildInput implements asm.Assembler.
func (a *scriptAssembler) BuildInput(dst asm.Reg, axis uint32) {
	a.push(record{kind: recInput, dst: uint8(dst), aux: axis})
}

// BuildVar implements asm.Assembler.
func (a *scriptAssembler) BuildVar(dst asm.Reg, id uint32) {
	a.push(record{kind: recVar, dst: uint8(dst), aux: id})
}

// BuildCopy implements asm.Assembler.
func (a *scriptAssembler) BuildCopy(dst, src asm.Reg) {
	a.push(record{kind: recCopy, dst: uint8(dst), lhs: uint8(src)})
}

func (a *scriptAssembler) unary(kind recKind, dst, lhs asm.Reg) {
	a.push(record{kind: kind, dst: uint8(dst), lhs: uint8(lhs)})
}

// BuildNeg implements asm.Assembler.
func (a *scriptAssembler) BuildNeg(dst, lhs asm.Reg) { a.unary(recNeg, dst, lhs) }

// BuildAbs implements asm.Assembler.
func (a *scriptAssembler) BuildAbs(dst, lhs asm.Reg) { a.unary(recAbs, dst, lhs) }

// BuildRecip implements asm.Assembler.
func (a *scriptAssembler) BuildRecip(dst, lhs asm.Reg) { a.unary(recRecip, dst, lhs) }

// BuildSqrt implements asm.Assembler.
func (a *scriptAssembler) BuildSqrt(dst, lhs asm.Reg) { a.unary(recSqrt, dst, lhs) }

// BuildSquare implements asm.Assembler.
func (a *scriptAssembler) BuildSquare(dst, lhs asm.Reg) { a.unary(recSquare, dst, lhs) }

func (a *scriptAssembler) binary(kind recKind, dst, lhs, rhs asm.Reg) {
	a.push(record{kind: kind, dst: uint8(dst), lhs: uint8(lhs), rhs: uint8(rhs)})
}

// BuildAdd implements asm.Assembler.
func (a *scriptAssembler) BuildAdd(dst, lhs, rhs asm.Reg) { a.binary(recAdd, dst, lhs, rhs) }

// BuildSub implements asm.Assembler.
func (a *scriptAssembler) BuildSub(dst, lhs, rhs asm.Reg) { a.binary(recSub, dst, lhs, rhs) }

// BuildMul implements asm.Assembler.
func (a *scriptAssembler) BuildMul(dst, lhs, rhs asm.Reg) { a.binary(recMul, dst, lhs, rhs) }

// BuildDiv implements asm.Assembler.
func (a *scriptAssembler) BuildDiv(dst, lhs, rhs asm.Reg) { a.binary(recDiv, dst, lhs, rhs) }

// BuildMin implements asm.Assembler.
func (a *scriptAssembler) BuildMin(dst, lhs, rhs asm.Reg, choice int) {
	a.push(record{kind: recMin, dst: uint8(dst), lhs: uint8(lhs), rhs: uint8(rhs), aux: uint32(choice)})
}

// BuildMax implements asm.Assembler.
func (a *scriptAssembler) BuildMax(dst, lhs, rhs asm.Reg, choice int) {
	a.push(record{kind: recMax, dst: uint8(dst), lhs: uint8(lhs), rhs: uint8(rhs), aux: uint32(choice)})
}

// BuildFma implements asm.Assembler.
func (a *scriptAssembler) BuildFma(dst, lhs, rhs asm.Reg) { a.binary(recFma, dst, lhs, rhs) }

// LoadImm implements asm.Assembler.
func (a *scriptAssembler) LoadImm(imm float32) asm.Reg {
	a.push(record{kind: recImm, dst: uint8(immReg), imm: imm})
	return immReg
}

// BuildLoad implements asm.Assembler.
func (a *scriptAssembler) BuildLoad(dst asm.Reg, slot uint32) {
	a.push(record{kind: recLoad, dst: uint8(dst), aux: slot})
}

// BuildStore implements asm.Assembler.
func (a *scriptAssembler) BuildStore(slot uint32, src asm.Reg) {
	a.push(record{kind: recStore, lhs: uint8(src), aux: slot})
}

// Finalize implements asm.Assembler.
func (a *scriptAssembler) Finalize(result asm.Reg) error {
	a.s.result = uint8(result)
	return nil
}

var _ asm.Assembler = (*scriptAssembler)(nil)

func checkTape(t *ir.Tape) {
	if t.RegLimit > RegLimit {
		panic("interpreter: tape scheduled over the family register limit")
	}
}
