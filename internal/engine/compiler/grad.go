//go:build amd64 && (linux || darwin || freebsd)

package compiler

import (
	"math"
	"runtime"
	"unsafe"

	"github.com/implicitcad/carve/api"
	"github.com/implicitcad/carve/internal/asm"
	"github.com/implicitcad/carve/internal/asm/amd64"
	"github.com/implicitcad/carve/internal/engine"
	"github.com/implicitcad/carve/internal/ir"
)

// gradAssembler emits forward-mode dual-number evaluation: each register
// holds [v, dx, dy, dz]. The wrapper seeds the three input gradients in
// in[0..11]; the unit derivative lanes are data, not code.
type gradAssembler struct {
	assemblerData
}

// Init implements asm.Assembler.
func (p *gradAssembler) Init(slotCount int) { p.prologue() }

// BuildInput implements asm.Assembler.
func (p *gradAssembler) BuildInput(dst asm.Reg, axis uint32) {
	p.a.MovupsLoad(xmm(dst), amd64.RDI, int32(offIn+axis*16))
}

// BuildVar implements asm.Assembler: bindings are constants with zero
// derivative.
func (p *gradAssembler) BuildVar(dst asm.Reg, id uint32) {
	p.a.MovssLoad(xmm(dst), amd64.RCX, int32(id*4))
}

// BuildCopy implements asm.Assembler.
func (p *gradAssembler) BuildCopy(dst, src asm.Reg) {
	if dst != src {
		p.a.Movaps(xmm(dst), xmm(src))
	}
}

func (p *gradAssembler) negInto(dst, src amd64.XMM) {
	p.loadBits(tmp0, float32Sign, true)
	if dst != src {
		p.a.Movaps(dst, src)
	}
	p.a.Xorps(dst, tmp0)
}

// BuildNeg implements asm.Assembler.
func (p *gradAssembler) BuildNeg(dst, lhs asm.Reg) {
	p.negInto(xmm(dst), xmm(lhs))
}

// BuildAbs implements asm.Assembler: |f| is f or -f depending on the sign
// of the value lane.
func (p *gradAssembler) BuildAbs(dst, lhs asm.Reg) {
	s, d := xmm(lhs), xmm(dst)
	p.a.Xorps(tmp1, tmp1)
	p.a.Ucomiss(tmp1, s)
	jNeg := p.a.Jcc(amd64.JA) // v < 0
	if d != s {
		p.a.Movaps(d, s)
	}
	jEnd := p.a.Jmp()
	p.a.Bind(jNeg)
	p.negInto(d, s)
	p.a.Bind(jEnd)
}

// BuildRecip implements asm.Assembler:
// 1/f = [v/v², -dx/v², -dy/v², -dz/v²].
func (p *gradAssembler) BuildRecip(dst, lhs asm.Reg) {
	s, d := xmm(lhs), xmm(dst)
	p.a.Movaps(tmp0, s)
	p.a.Shufps(tmp0, tmp0, 0)
	p.a.Mulps(tmp0, tmp0) // v² in all lanes
	p.a.Movaps(tmp1, s)
	p.a.Divps(tmp1, tmp0) // [1/v, dx/v², dy/v², dz/v²]
	p.loadBits(tmp2, float32Sign, false)
	p.a.Shufps(tmp2, tmp2, 0x01) // [0, sign, sign, sign]
	p.a.Xorps(tmp1, tmp2)
	p.a.Movaps(d, tmp1)
}

// BuildSqrt implements asm.Assembler: d(sqrt f) = df / (2*sqrt f).
func (p *gradAssembler) BuildSqrt(dst, lhs asm.Reg) {
	s, d := xmm(lhs), xmm(dst)
	p.a.Sqrtss(tmp2, s) // lane0 = sqrt(v)
	p.a.Movaps(tmp0, tmp2)
	p.a.Shufps(tmp0, tmp0, 0)
	p.a.Addps(tmp0, tmp0) // 2*sqrt(v) in all lanes
	p.a.Movaps(tmp1, s)
	p.a.Divps(tmp1, tmp0)
	p.a.Movss(tmp1, tmp2) // restore the value lane
	p.a.Movaps(d, tmp1)
}

// BuildSquare implements asm.Assembler: d(f²) = 2v·df.
func (p *gradAssembler) BuildSquare(dst, lhs asm.Reg) {
	s, d := xmm(lhs), xmm(dst)
	p.a.Movaps(tmp0, s)
	p.a.Shufps(tmp0, tmp0, 0)
	p.a.Addps(tmp0, tmp0) // 2v in all lanes
	p.a.Movaps(tmp1, s)
	p.a.Mulps(tmp1, tmp0) // [2v², 2v·dx, ...]
	p.a.Movaps(tmp2, s)
	p.a.Mulss(tmp2, tmp2) // v²
	p.a.Movss(tmp1, tmp2)
	p.a.Movaps(d, tmp1)
}

// BuildAdd implements asm.Assembler.
func (p *gradAssembler) BuildAdd(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Addps, true, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildSub implements asm.Assembler.
func (p *gradAssembler) BuildSub(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Subps, false, xmm(dst), xmm(lhs), xmm(rhs))
}

// mulCore leaves lhs*rhs (dual-number product) in tmp2.
func (p *gradAssembler) mulCore(lhs, rhs amd64.XMM) {
	p.a.Movaps(tmp0, lhs)
	p.a.Shufps(tmp0, tmp0, 0) // a.v in all lanes
	p.a.Movaps(tmp2, rhs)
	p.a.Mulps(tmp2, tmp0) // [av·bv, av·bdx, ...]
	p.a.Movaps(tmp1, rhs)
	p.a.Shufps(tmp1, tmp1, 0) // b.v in all lanes
	p.a.Movaps(tmp0, lhs)
	p.a.Mulps(tmp0, tmp1) // [av·bv, bv·adx, ...]
	p.a.Addps(tmp2, tmp0)
	p.a.Movss(tmp2, tmp0) // value lane added twice; restore av·bv
}

// BuildMul implements asm.Assembler.
func (p *gradAssembler) BuildMul(dst, lhs, rhs asm.Reg) {
	p.mulCore(xmm(lhs), xmm(rhs))
	p.a.Movaps(xmm(dst), tmp2)
}

// BuildDiv implements asm.Assembler:
// d(a/b) = (bv·da - av·db) / bv².
func (p *gradAssembler) BuildDiv(dst, lhs, rhs asm.Reg) {
	l, r, d := xmm(lhs), xmm(rhs), xmm(dst)
	p.a.Movaps(tmp0, r)
	p.a.Shufps(tmp0, tmp0, 0) // bv
	p.a.Movaps(tmp1, l)
	p.a.Shufps(tmp1, tmp1, 0) // av
	p.a.Mulps(tmp1, r)        // av·b
	p.a.Movaps(tmp2, l)
	p.a.Mulps(tmp2, tmp0) // bv·a
	p.a.Subps(tmp2, tmp1) // [0, bv·adx - av·bdx, ...]
	p.a.Mulps(tmp0, tmp0) // bv²
	p.a.Divps(tmp2, tmp0)
	p.a.Movaps(tmp1, l)
	p.a.Divss(tmp1, r) // av/bv
	p.a.Movss(tmp2, tmp1)
	p.a.Movaps(d, tmp2)
}

func (p *gradAssembler) buildMinMax(dst, lhs, rhs asm.Reg, isMax bool) {
	l, r, d := xmm(lhs), xmm(rhs), xmm(dst)
	// Strict value-lane compare; on ties and NaN the left operand wins,
	// matching the interpreter.
	if isMax {
		p.a.Ucomiss(r, l) // rhs.v > lhs.v → take rhs
	} else {
		p.a.Ucomiss(l, r) // lhs.v > rhs.v → take rhs
	}
	jRight := p.a.Jcc(amd64.JA)
	if d != l {
		p.a.Movaps(d, l)
	}
	jEnd := p.a.Jmp()
	p.a.Bind(jRight)
	if d != r {
		p.a.Movaps(d, r)
	}
	p.a.Bind(jEnd)
}

// BuildMin implements asm.Assembler.
func (p *gradAssembler) BuildMin(dst, lhs, rhs asm.Reg, choice int) {
	p.buildMinMax(dst, lhs, rhs, false)
}

// BuildMax implements asm.Assembler.
func (p *gradAssembler) BuildMax(dst, lhs, rhs asm.Reg, choice int) {
	p.buildMinMax(dst, lhs, rhs, true)
}

// BuildFma implements asm.Assembler.
func (p *gradAssembler) BuildFma(dst, lhs, rhs asm.Reg) {
	p.mulCore(xmm(lhs), xmm(rhs))
	p.a.Addps(xmm(dst), tmp2)
}

// LoadImm implements asm.Assembler.
func (p *gradAssembler) LoadImm(imm float32) asm.Reg {
	p.loadBits(immX, math.Float32bits(imm), false)
	return immReg
}

// BuildLoad implements asm.Assembler.
func (p *gradAssembler) BuildLoad(dst asm.Reg, slot uint32) {
	p.a.MovupsLoad(xmm(dst), amd64.R8, int32(slot*16))
}

// BuildStore implements asm.Assembler.
func (p *gradAssembler) BuildStore(slot uint32, src asm.Reg) {
	p.a.MovupsStore(amd64.R8, int32(slot*16), xmm(src))
}

// Finalize implements asm.Assembler.
func (p *gradAssembler) Finalize(result asm.Reg) error {
	p.a.MovGPR64Load(amd64.RAX, amd64.RDI, offOut)
	p.a.MovupsStore(amd64.RAX, 0, xmm(result))
	return p.finalize()
}

var _ asm.Assembler = (*gradAssembler)(nil)

type gradKernel struct {
	seg     *asm.CodeSegment
	ctx     *callContext
	scratch []float32
	outBuf  [4]float32
	taken   bool
}

// NewGradKernel compiles a gradient-mode function for the tape.
func NewGradKernel(t *ir.Tape, storage engine.Storage) (engine.GradKernel, error) {
	if err := checkTape(t); err != nil {
		return nil, err
	}
	seg, err := segmentFor(storage)
	if err != nil {
		return nil, err
	}
	ga := &gradAssembler{newAssemblerData(seg)}
	if err := asm.BuildFunction(ga, t); err != nil {
		engine.ReleaseSegment(seg)
		return nil, err
	}
	return &gradKernel{
		seg:     seg,
		ctx:     &callContext{},
		scratch: scratchFloats(storage, t.SlotCount*4),
	}, nil
}

// EvalGrad implements engine.GradKernel.
func (k *gradKernel) EvalGrad(x, y, z float32, vars []float32) api.Grad {
	if k.taken {
		panic("compiler: evaluator used after Take")
	}
	c := k.ctx
	c.in = [12]float32{
		x, 1, 0, 0,
		y, 0, 1, 0,
		z, 0, 0, 1,
	}
	c.vars = floatsAddr(vars)
	c.out = uintptr(unsafe.Pointer(&k.outBuf))
	c.scratch = floatsAddr(k.scratch)
	nativecall(k.seg.Addr(), unsafe.Pointer(c))
	runtime.KeepAlive(vars)
	runtime.KeepAlive(k)
	return api.Grad{V: k.outBuf[0], Dx: k.outBuf[1], Dy: k.outBuf[2], Dz: k.outBuf[3]}
}

// Take implements engine.GradKernel.
func (k *gradKernel) Take() (engine.Storage, bool) {
	if k.taken {
		return engine.Storage{}, false
	}
	k.taken = true
	return engine.Storage{Seg: k.seg, Scratch: k.scratch}, true
}
