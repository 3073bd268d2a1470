//go:build amd64 && (linux || darwin || freebsd)

// Package compiler is the JIT evaluation backend: it lowers
// register-scheduled tapes into native x86-64 code, one assembler per
// evaluation mode, all sharing the calling convention below.
//
// The generated function receives a single *callContext in RDI and returns
// with RET. Inputs, variable bindings, the choice trail, the simplify flag,
// the output buffer, and the spill scratch all live behind the context, so
// the code restricts itself to caller-saved registers and needs no
// prologue saves: spills go to a heap scratch buffer, not the C stack.
//
// Register plan: XMM0-XMM2 are per-op scratch, XMM3 holds immediates, and
// XMM4-XMM15 form the allocatable file (RegisterLimit = 12). RAX is a
// general scratch; RCX/RSI/RDX/R8 are loaded with the vars, choices,
// simplify, and scratch pointers on entry.
package compiler

import (
	"fmt"

	"github.com/implicitcad/carve/internal/asm"
	"github.com/implicitcad/carve/internal/asm/amd64"
	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/ir"
)

// RegisterLimit is the JIT family's register budget: XMM4 through XMM15.
const RegisterLimit = 12

// immReg is the contract-level name of the immediate register.
const immReg = asm.Reg(255)

const (
	tmp0 amd64.XMM = 0
	tmp1 amd64.XMM = 1
	tmp2 amd64.XMM = 2
	immX amd64.XMM = 3
)

// xmm maps a contract register to its hardware register.
func xmm(r asm.Reg) amd64.XMM {
	if r == immReg {
		return immX
	}
	if r >= RegisterLimit {
		panic(fmt.Sprintf("compiler: register %d out of range", r))
	}
	return amd64.XMM(r) + 4
}

// callContext is the fixed-layout argument block of generated functions.
// The offsets below are part of the emitted code; changing the struct means
// changing them together.
type callContext struct {
	in       [12]float32
	xs       uintptr
	ys       uintptr
	zs       uintptr
	vars     uintptr
	choices  uintptr
	simplify uintptr
	out      uintptr
	scratch  uintptr
}

const (
	offIn       = 0
	offXs       = 48
	offYs       = 56
	offZs       = 64
	offVars     = 72
	offChoices  = 80
	offSimplify = 88
	offOut      = 96
	offScratch  = 104
)

const (
	float32Nan  = 0x7FC00000
	float32One  = 0x3F800000
	float32Sign = 0x80000000
	float32Mag  = 0x7FFFFFFF
)

// assemblerData is the state shared by the four mode assemblers.
type assemblerData struct {
	a   *amd64.Assembler
	seg *asm.CodeSegment
}

func newAssemblerData(seg *asm.CodeSegment) assemblerData {
	return assemblerData{a: amd64.New(seg), seg: seg}
}

// prologue loads the pointer arguments into their dedicated registers.
func (d *assemblerData) prologue() {
	d.a.MovGPR64Load(amd64.RCX, amd64.RDI, offVars)
	d.a.MovGPR64Load(amd64.RSI, amd64.RDI, offChoices)
	d.a.MovGPR64Load(amd64.RDX, amd64.RDI, offSimplify)
	d.a.MovGPR64Load(amd64.R8, amd64.RDI, offScratch)
}

// loadBits materializes a 32-bit pattern into lane 0 of x, optionally
// broadcasting it to all four lanes.
func (d *assemblerData) loadBits(x amd64.XMM, bits uint32, broadcast bool) {
	d.a.MovEAXImm32(bits)
	d.a.Movd(x, amd64.RAX)
	if broadcast {
		d.a.Shufps(x, x, 0)
	}
}

// binOp arranges dst = lhs OP rhs for a destructive two-operand SSE
// emitter, handling every aliasing combination. Non-commutative ops with
// dst aliasing rhs stage the right operand in tmp0.
func (d *assemblerData) binOp(emit func(dst, src amd64.XMM), commute bool, dst, lhs, rhs amd64.XMM) {
	switch {
	case dst == lhs:
		emit(dst, rhs)
	case dst == rhs && commute:
		emit(dst, lhs)
	case dst == rhs:
		d.a.Movaps(tmp0, rhs)
		d.a.Movaps(dst, lhs)
		emit(dst, tmp0)
	default:
		d.a.Movaps(dst, lhs)
		emit(dst, rhs)
	}
}

// orChoice ORs the 2-bit choice c into choices[idx], and for a decided
// (left/right) choice raises the simplify flag byte.
func (d *assemblerData) orChoice(idx int, c byte, decided bool) {
	d.a.MovALLoad(amd64.RSI, int32(idx))
	d.a.OrALImm(c)
	d.a.MovALStore(amd64.RSI, int32(idx))
	if decided {
		d.a.MovByteStoreImm(amd64.RDX, 0, 1)
	}
}

// finalize ends the function and flips the segment executable.
func (d *assemblerData) finalize() error {
	d.a.Ret()
	return d.seg.Finalize()
}

// segmentFor picks the code segment for a new kernel: the donated one, a
// pooled one, or a fresh mapping.
func segmentFor(storage engine.Storage) (*asm.CodeSegment, error) {
	seg := storage.Seg
	if seg == nil {
		seg = engine.PooledSegment()
	}
	if seg == nil {
		return asm.NewCodeSegment(), nil
	}
	if err := seg.Reset(); err != nil {
		return nil, err
	}
	return seg, nil
}

func checkTape(t *ir.Tape) error {
	if t.RegLimit > RegisterLimit {
		return fmt.Errorf("compiler: tape scheduled for %d registers, family limit is %d", t.RegLimit, RegisterLimit)
	}
	return nil
}

// scratchFloats sizes the spill scratch, reusing donated capacity.
func scratchFloats(storage engine.Storage, n int) []float32 {
	if cap(storage.Scratch) >= n {
		return storage.Scratch[:n]
	}
	return make([]float32, n)
}
