//go:build amd64 && (linux || darwin || freebsd)

package compiler

import (
	"math"
	"runtime"
	"unsafe"

	"github.com/implicitcad/carve/internal/asm"
	"github.com/implicitcad/carve/internal/asm/amd64"
	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/ir"
)

// pointAssembler emits scalar SSE code: each register carries one float in
// lane 0.
//
// The compiled function reads x, y, z from in[0..2] and writes the result
// to out[0].
type pointAssembler struct {
	assemblerData
}

// Init implements asm.Assembler.
func (p *pointAssembler) Init(slotCount int) { p.prologue() }

// BuildInput implements asm.Assembler.
func (p *pointAssembler) BuildInput(dst asm.Reg, axis uint32) {
	p.a.MovssLoad(xmm(dst), amd64.RDI, int32(offIn+axis*4))
}

// BuildVar implements asm.Assembler.
func (p *pointAssembler) BuildVar(dst asm.Reg, id uint32) {
	p.a.MovssLoad(xmm(dst), amd64.RCX, int32(id*4))
}

// BuildCopy implements asm.Assembler.
func (p *pointAssembler) BuildCopy(dst, src asm.Reg) {
	if dst != src {
		p.a.Movaps(xmm(dst), xmm(src))
	}
}

// BuildNeg implements asm.Assembler.
func (p *pointAssembler) BuildNeg(dst, lhs asm.Reg) {
	p.loadBits(tmp0, float32Sign, false)
	p.BuildCopy(dst, lhs)
	p.a.Xorps(xmm(dst), tmp0)
}

// BuildAbs implements asm.Assembler.
func (p *pointAssembler) BuildAbs(dst, lhs asm.Reg) {
	p.loadBits(tmp0, float32Mag, false)
	p.BuildCopy(dst, lhs)
	p.a.Andps(xmm(dst), tmp0)
}

// BuildRecip implements asm.Assembler.
func (p *pointAssembler) BuildRecip(dst, lhs asm.Reg) {
	p.loadBits(tmp0, float32One, false)
	p.a.Divss(tmp0, xmm(lhs))
	p.a.Movaps(xmm(dst), tmp0)
}

// BuildSqrt implements asm.Assembler.
func (p *pointAssembler) BuildSqrt(dst, lhs asm.Reg) {
	p.a.Sqrtss(xmm(dst), xmm(lhs))
}

// BuildSquare implements asm.Assembler.
func (p *pointAssembler) BuildSquare(dst, lhs asm.Reg) {
	p.BuildCopy(dst, lhs)
	p.a.Mulss(xmm(dst), xmm(dst))
}

// BuildAdd implements asm.Assembler.
func (p *pointAssembler) BuildAdd(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Addss, true, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildSub implements asm.Assembler.
func (p *pointAssembler) BuildSub(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Subss, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildMul implements asm.Assembler.
func (p *pointAssembler) BuildMul(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Mulss, true, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildDiv implements asm.Assembler.
func (p *pointAssembler) BuildDiv(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Divss, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildMin implements asm.Assembler. MINSS keeps hardware operand-order
// semantics on NaN inputs; choice output only exists in interval mode.
func (p *pointAssembler) BuildMin(dst, lhs, rhs asm.Reg, choice int) {
	p.binOp(p.a.Minss, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildMax implements asm.Assembler.
func (p *pointAssembler) BuildMax(dst, lhs, rhs asm.Reg, choice int) {
	p.binOp(p.a.Maxss, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildFma implements asm.Assembler.
func (p *pointAssembler) BuildFma(dst, lhs, rhs asm.Reg) {
	p.a.Movaps(tmp0, xmm(lhs))
	p.a.Mulss(tmp0, xmm(rhs))
	p.a.Addss(xmm(dst), tmp0)
}

// LoadImm implements asm.Assembler.
func (p *pointAssembler) LoadImm(imm float32) asm.Reg {
	p.loadBits(immX, math.Float32bits(imm), false)
	return immReg
}

// BuildLoad implements asm.Assembler.
func (p *pointAssembler) BuildLoad(dst asm.Reg, slot uint32) {
	p.a.MovssLoad(xmm(dst), amd64.R8, int32(slot*4))
}

// BuildStore implements asm.Assembler.
func (p *pointAssembler) BuildStore(slot uint32, src asm.Reg) {
	p.a.MovssStore(amd64.R8, int32(slot*4), xmm(src))
}

// Finalize implements asm.Assembler.
func (p *pointAssembler) Finalize(result asm.Reg) error {
	p.a.MovGPR64Load(amd64.RAX, amd64.RDI, offOut)
	p.a.MovssStore(amd64.RAX, 0, xmm(result))
	return p.finalize()
}

var _ asm.Assembler = (*pointAssembler)(nil)

type pointKernel struct {
	seg     *asm.CodeSegment
	ctx     *callContext
	scratch []float32
	outBuf  [4]float32
	taken   bool
}

// NewPointKernel compiles a point-mode function for the tape, reusing
// donated storage when present.
func NewPointKernel(t *ir.Tape, storage engine.Storage) (engine.PointKernel, error) {
	if err := checkTape(t); err != nil {
		return nil, err
	}
	seg, err := segmentFor(storage)
	if err != nil {
		return nil, err
	}
	pa := &pointAssembler{newAssemblerData(seg)}
	if err := asm.BuildFunction(pa, t); err != nil {
		engine.ReleaseSegment(seg)
		return nil, err
	}
	return &pointKernel{
		seg:     seg,
		ctx:     &callContext{},
		scratch: scratchFloats(storage, t.SlotCount),
	}, nil
}

// EvalPoint implements engine.PointKernel.
func (k *pointKernel) EvalPoint(x, y, z float32, vars []float32) float32 {
	if k.taken {
		panic("compiler: evaluator used after Take")
	}
	c := k.ctx
	c.in[0], c.in[1], c.in[2] = x, y, z
	c.vars = floatsAddr(vars)
	c.out = uintptr(unsafe.Pointer(&k.outBuf))
	c.scratch = floatsAddr(k.scratch)
	nativecall(k.seg.Addr(), unsafe.Pointer(c))
	runtime.KeepAlive(vars)
	runtime.KeepAlive(k)
	return k.outBuf[0]
}

// Take implements engine.PointKernel.
func (k *pointKernel) Take() (engine.Storage, bool) {
	if k.taken {
		return engine.Storage{}, false
	}
	k.taken = true
	return engine.Storage{Seg: k.seg, Scratch: k.scratch}, true
}

func floatsAddr(s []float32) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0]))
}
