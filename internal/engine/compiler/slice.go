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

// sliceAssembler emits packed evaluation: every register holds four
// independent sample points, one per lane. The compiled function loads four
// floats from each of the xs/ys/zs base pointers and writes four results to
// out; the Go wrapper walks the slices in chunks of four.
type sliceAssembler struct {
	assemblerData
}

// Init implements asm.Assembler.
func (p *sliceAssembler) Init(slotCount int) { p.prologue() }

// BuildInput implements asm.Assembler.
func (p *sliceAssembler) BuildInput(dst asm.Reg, axis uint32) {
	p.a.MovGPR64Load(amd64.RAX, amd64.RDI, int32(offXs+axis*8))
	p.a.MovupsLoad(xmm(dst), amd64.RAX, 0)
}

// BuildVar implements asm.Assembler.
func (p *sliceAssembler) BuildVar(dst asm.Reg, id uint32) {
	p.a.MovssLoad(xmm(dst), amd64.RCX, int32(id*4))
	p.a.Shufps(xmm(dst), xmm(dst), 0)
}

// BuildCopy implements asm.Assembler.
func (p *sliceAssembler) BuildCopy(dst, src asm.Reg) {
	if dst != src {
		p.a.Movaps(xmm(dst), xmm(src))
	}
}

// BuildNeg implements asm.Assembler.
func (p *sliceAssembler) BuildNeg(dst, lhs asm.Reg) {
	p.loadBits(tmp0, float32Sign, true)
	p.BuildCopy(dst, lhs)
	p.a.Xorps(xmm(dst), tmp0)
}

// BuildAbs implements asm.Assembler.
func (p *sliceAssembler) BuildAbs(dst, lhs asm.Reg) {
	p.loadBits(tmp0, float32Mag, true)
	p.BuildCopy(dst, lhs)
	p.a.Andps(xmm(dst), tmp0)
}

// BuildRecip implements asm.Assembler.
func (p *sliceAssembler) BuildRecip(dst, lhs asm.Reg) {
	p.loadBits(tmp0, float32One, true)
	p.a.Divps(tmp0, xmm(lhs))
	p.a.Movaps(xmm(dst), tmp0)
}

// BuildSqrt implements asm.Assembler.
func (p *sliceAssembler) BuildSqrt(dst, lhs asm.Reg) {
	p.a.Sqrtps(xmm(dst), xmm(lhs))
}

// BuildSquare implements asm.Assembler.
func (p *sliceAssembler) BuildSquare(dst, lhs asm.Reg) {
	p.BuildCopy(dst, lhs)
	p.a.Mulps(xmm(dst), xmm(dst))
}

// BuildAdd implements asm.Assembler.
func (p *sliceAssembler) BuildAdd(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Addps, true, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildSub implements asm.Assembler.
func (p *sliceAssembler) BuildSub(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Subps, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildMul implements asm.Assembler.
func (p *sliceAssembler) BuildMul(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Mulps, true, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildDiv implements asm.Assembler.
func (p *sliceAssembler) BuildDiv(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Divps, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildMin implements asm.Assembler.
func (p *sliceAssembler) BuildMin(dst, lhs, rhs asm.Reg, choice int) {
	p.binOp(p.a.Minps, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildMax implements asm.Assembler.
func (p *sliceAssembler) BuildMax(dst, lhs, rhs asm.Reg, choice int) {
	p.binOp(p.a.Maxps, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildFma implements asm.Assembler.
func (p *sliceAssembler) BuildFma(dst, lhs, rhs asm.Reg) {
	p.a.Movaps(tmp0, xmm(lhs))
	p.a.Mulps(tmp0, xmm(rhs))
	p.a.Addps(xmm(dst), tmp0)
}

// LoadImm implements asm.Assembler.
func (p *sliceAssembler) LoadImm(imm float32) asm.Reg {
	p.loadBits(immX, math.Float32bits(imm), true)
	return immReg
}

// BuildLoad implements asm.Assembler.
func (p *sliceAssembler) BuildLoad(dst asm.Reg, slot uint32) {
	p.a.MovupsLoad(xmm(dst), amd64.R8, int32(slot*16))
}

// BuildStore implements asm.Assembler.
func (p *sliceAssembler) BuildStore(slot uint32, src asm.Reg) {
	p.a.MovupsStore(amd64.R8, int32(slot*16), xmm(src))
}

// Finalize implements asm.Assembler.
func (p *sliceAssembler) Finalize(result asm.Reg) error {
	p.a.MovGPR64Load(amd64.RAX, amd64.RDI, offOut)
	p.a.MovupsStore(amd64.RAX, 0, xmm(result))
	return p.finalize()
}

var _ asm.Assembler = (*sliceAssembler)(nil)

type sliceKernel struct {
	seg     *asm.CodeSegment
	ctx     *callContext
	scratch []float32
	xTail   [4]float32
	yTail   [4]float32
	zTail   [4]float32
	outBuf  [4]float32
	taken   bool
}

// NewFloatSliceKernel compiles a packed float function for the tape.
func NewFloatSliceKernel(t *ir.Tape, storage engine.Storage) (engine.FloatSliceKernel, error) {
	if err := checkTape(t); err != nil {
		return nil, err
	}
	seg, err := segmentFor(storage)
	if err != nil {
		return nil, err
	}
	sa := &sliceAssembler{newAssemblerData(seg)}
	if err := asm.BuildFunction(sa, t); err != nil {
		engine.ReleaseSegment(seg)
		return nil, err
	}
	return &sliceKernel{
		seg:     seg,
		ctx:     &callContext{},
		scratch: scratchFloats(storage, t.SlotCount*4),
	}, nil
}

// EvalSlice implements engine.FloatSliceKernel, walking the inputs four
// lanes at a time and staging the ragged tail through fixed buffers.
func (k *sliceKernel) EvalSlice(xs, ys, zs, out, vars []float32) {
	if k.taken {
		panic("compiler: evaluator used after Take")
	}
	c := k.ctx
	c.vars = floatsAddr(vars)
	c.scratch = floatsAddr(k.scratch)
	code := k.seg.Addr()

	n := len(xs)
	i := 0
	for ; i+4 <= n; i += 4 {
		c.xs = uintptr(unsafe.Pointer(&xs[i]))
		c.ys = uintptr(unsafe.Pointer(&ys[i]))
		c.zs = uintptr(unsafe.Pointer(&zs[i]))
		c.out = uintptr(unsafe.Pointer(&out[i]))
		nativecall(code, unsafe.Pointer(c))
	}
	if rem := n - i; rem > 0 {
		copy(k.xTail[:], xs[i:])
		copy(k.yTail[:], ys[i:])
		copy(k.zTail[:], zs[i:])
		c.xs = uintptr(unsafe.Pointer(&k.xTail))
		c.ys = uintptr(unsafe.Pointer(&k.yTail))
		c.zs = uintptr(unsafe.Pointer(&k.zTail))
		c.out = uintptr(unsafe.Pointer(&k.outBuf))
		nativecall(code, unsafe.Pointer(c))
		copy(out[i:], k.outBuf[:rem])
	}
	runtime.KeepAlive(vars)
	runtime.KeepAlive(xs)
	runtime.KeepAlive(ys)
	runtime.KeepAlive(zs)
	runtime.KeepAlive(out)
	runtime.KeepAlive(k)
}

// Take implements engine.FloatSliceKernel.
func (k *sliceKernel) Take() (engine.Storage, bool) {
	if k.taken {
		return engine.Storage{}, false
	}
	k.taken = true
	return engine.Storage{Seg: k.seg, Scratch: k.scratch}, true
}
