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

// intervalAssembler emits interval arithmetic: each register holds an
// interval in its two low lanes, lane 0 the lower bound and lane 1 the
// upper. Branches use the NaN-safe JA form throughout so the empty (NaN)
// interval always falls into the conservative path.
//
// The compiled function reads the three input intervals from in[0..5],
// ORs one Choice byte per min/max into the trail, raises the simplify flag
// byte on any Left/Right choice, and writes [lower, upper] to out[0..1].
type intervalAssembler struct {
	assemblerData
}

// Init implements asm.Assembler.
func (p *intervalAssembler) Init(slotCount int) { p.prologue() }

// BuildInput implements asm.Assembler.
func (p *intervalAssembler) BuildInput(dst asm.Reg, axis uint32) {
	p.a.MovsdLoad(xmm(dst), amd64.RDI, int32(offIn+axis*8))
}

// BuildVar implements asm.Assembler. A variable binding is the degenerate
// interval [v, v].
func (p *intervalAssembler) BuildVar(dst asm.Reg, id uint32) {
	p.a.MovssLoad(xmm(dst), amd64.RCX, int32(id*4))
	p.a.Shufps(xmm(dst), xmm(dst), 0)
}

// BuildCopy implements asm.Assembler.
func (p *intervalAssembler) BuildCopy(dst, src asm.Reg) {
	if dst != src {
		p.a.Movaps(xmm(dst), xmm(src))
	}
}

// BuildNeg implements asm.Assembler: -[l, u] = [-u, -l], a sign flip
// followed by a lane swap.
func (p *intervalAssembler) BuildNeg(dst, lhs asm.Reg) {
	p.loadBits(tmp0, float32Sign, true)
	p.a.Movaps(tmp1, xmm(lhs))
	p.a.Xorps(tmp1, tmp0)
	p.a.Shufps(tmp1, tmp1, 0xE1)
	p.a.Movaps(xmm(dst), tmp1)
}

// BuildAbs implements asm.Assembler.
func (p *intervalAssembler) BuildAbs(dst, lhs asm.Reg) {
	s, d := xmm(lhs), xmm(dst)
	p.a.Xorps(tmp0, tmp0)
	p.a.Ucomiss(tmp0, s)
	jNeg := p.a.Jcc(amd64.JA) // lower < 0
	// Entirely non-negative (or NaN): identity.
	if d != s {
		p.a.Movaps(d, s)
	}
	jEnd1 := p.a.Jmp()

	p.a.Bind(jNeg)
	p.a.Movaps(tmp1, s)
	p.a.Shufps(tmp1, tmp1, 0xE1) // lane0 = upper
	p.a.Ucomiss(tmp1, tmp0)
	jStraddle := p.a.Jcc(amd64.JA) // upper > 0
	// Entirely non-positive: [-u, -l], i.e. negate the swapped lanes.
	p.loadBits(tmp2, float32Sign, true)
	p.a.Xorps(tmp1, tmp2)
	p.a.Movaps(d, tmp1)
	jEnd2 := p.a.Jmp()

	p.a.Bind(jStraddle)
	// [0, max(upper, -lower)]
	p.a.Xorps(tmp2, tmp2)
	p.a.Subss(tmp2, s) // -lower
	p.a.Maxss(tmp2, tmp1)
	p.a.Xorps(tmp1, tmp1)
	p.a.Unpcklps(tmp1, tmp2)
	p.a.Movaps(d, tmp1)

	p.a.Bind(jEnd1)
	p.a.Bind(jEnd2)
}

// BuildRecip implements asm.Assembler.
func (p *intervalAssembler) BuildRecip(dst, lhs asm.Reg) {
	s, d := xmm(lhs), xmm(dst)
	p.a.Xorps(tmp0, tmp0)
	p.a.Ucomiss(s, tmp0)
	jOK1 := p.a.Jcc(amd64.JA) // lower > 0
	p.a.Movaps(tmp1, s)
	p.a.Shufps(tmp1, tmp1, 0xE1)
	p.a.Ucomiss(tmp0, tmp1)
	jOK2 := p.a.Jcc(amd64.JA) // upper < 0
	// The operand spans zero: empty result.
	p.loadBits(d, float32Nan, true)
	jEnd := p.a.Jmp()

	p.a.Bind(jOK1)
	p.a.Bind(jOK2)
	// [1/u, 1/l]
	p.loadBits(tmp2, float32One, true)
	p.a.Divps(tmp2, s)
	p.a.Shufps(tmp2, tmp2, 0xE1)
	p.a.Movaps(d, tmp2)
	p.a.Bind(jEnd)
}

// BuildSqrt implements asm.Assembler.
func (p *intervalAssembler) BuildSqrt(dst, lhs asm.Reg) {
	s, d := xmm(lhs), xmm(dst)
	p.a.Xorps(tmp0, tmp0)
	p.a.Ucomiss(tmp0, s)
	jNeg := p.a.Jcc(amd64.JA) // lower < 0
	p.a.Sqrtps(d, s)
	jEnd1 := p.a.Jmp()

	p.a.Bind(jNeg)
	p.a.Movaps(tmp1, s)
	p.a.Shufps(tmp1, tmp1, 0xE1) // lane0 = upper
	p.a.Ucomiss(tmp0, tmp1)
	jNan := p.a.Jcc(amd64.JA) // upper < 0
	// Straddling zero clamps to [0, sqrt(upper)].
	p.a.Sqrtss(tmp1, tmp1)
	p.a.Xorps(tmp2, tmp2)
	p.a.Unpcklps(tmp2, tmp1)
	p.a.Movaps(d, tmp2)
	jEnd2 := p.a.Jmp()

	p.a.Bind(jNan)
	p.loadBits(d, float32Nan, true)
	p.a.Bind(jEnd1)
	p.a.Bind(jEnd2)
}

// BuildSquare implements asm.Assembler.
func (p *intervalAssembler) BuildSquare(dst, lhs asm.Reg) {
	s, d := xmm(lhs), xmm(dst)
	p.a.Xorps(tmp0, tmp0)
	p.a.Movaps(tmp2, s)
	p.a.Mulps(tmp2, tmp2) // [l², u²]
	p.a.Ucomiss(tmp0, s)
	jNeg := p.a.Jcc(amd64.JA) // lower < 0
	p.a.Movaps(d, tmp2)
	jEnd1 := p.a.Jmp()

	p.a.Bind(jNeg)
	p.a.Movaps(tmp1, s)
	p.a.Shufps(tmp1, tmp1, 0xE1)
	p.a.Ucomiss(tmp1, tmp0)
	jStraddle := p.a.Jcc(amd64.JA) // upper > 0
	// Entirely non-positive: [u², l²].
	p.a.Shufps(tmp2, tmp2, 0xE1)
	p.a.Movaps(d, tmp2)
	jEnd2 := p.a.Jmp()

	p.a.Bind(jStraddle)
	// [0, max(l², u²)]
	p.a.Movaps(tmp1, tmp2)
	p.a.Shufps(tmp1, tmp1, 0xE1)
	p.a.Maxss(tmp1, tmp2)
	p.a.Xorps(tmp2, tmp2)
	p.a.Unpcklps(tmp2, tmp1)
	p.a.Movaps(d, tmp2)

	p.a.Bind(jEnd1)
	p.a.Bind(jEnd2)
}

// BuildAdd implements asm.Assembler: bounds add lanewise.
func (p *intervalAssembler) BuildAdd(dst, lhs, rhs asm.Reg) {
	p.binOp(p.a.Addps, true, xmm(dst), xmm(lhs), xmm(rhs))
}

// BuildSub implements asm.Assembler: [a,b] - [c,d] = [a-d, b-c], a lanewise
// subtract of the swapped right operand.
func (p *intervalAssembler) BuildSub(dst, lhs, rhs asm.Reg) {
	l, r, d := xmm(lhs), xmm(rhs), xmm(dst)
	p.a.Movaps(tmp0, r)
	p.a.Shufps(tmp0, tmp0, 0xE1)
	if d != l {
		p.a.Movaps(d, l)
	}
	p.a.Subps(d, tmp0)
}

// mulCore leaves [min, max] of the four cross products of lhs*rhs (or the
// four quotients when div is set) in the low lanes of tmp2. A NaN product
// (inf times zero) must make the whole result empty, but the hardware
// min/max would drop it, so the unordered lanes are folded back in at the
// end; the immediate register doubles as the mask since any immediate
// operand has been consumed by this point.
func (p *intervalAssembler) mulCore(lhs, rhs amd64.XMM, div bool) {
	p.a.Movaps(tmp0, lhs)
	p.a.Shufps(tmp0, tmp0, 0x44) // [l, u, l, u]
	p.a.Movaps(tmp1, rhs)
	p.a.Shufps(tmp1, tmp1, 0x50) // [l, l, u, u]
	if div {
		p.a.Divps(tmp0, tmp1)
	} else {
		p.a.Mulps(tmp0, tmp1)
	}
	// NaN-lane mask, horizontally ORed across all four lanes.
	p.a.Movaps(immX, tmp0)
	p.a.Cmpps(immX, tmp0, 3)
	p.a.Movaps(tmp1, immX)
	p.a.Shufps(tmp1, tmp1, 0x4E)
	p.a.Orps(immX, tmp1)
	p.a.Movaps(tmp1, immX)
	p.a.Shufps(tmp1, tmp1, 0xB1)
	p.a.Orps(immX, tmp1)
	// Reduce the four lanes to [min, max] with shuffle/compare ladders.
	p.a.Movaps(tmp1, tmp0)
	p.a.Shufps(tmp1, tmp1, 0x4E) // swap 64-bit halves
	p.a.Movaps(tmp2, tmp0)
	p.a.Minps(tmp2, tmp1)
	p.a.Maxps(tmp0, tmp1)
	p.a.Movaps(tmp1, tmp2)
	p.a.Shufps(tmp1, tmp1, 0xB1) // swap within pairs
	p.a.Minps(tmp2, tmp1)
	p.a.Movaps(tmp1, tmp0)
	p.a.Shufps(tmp1, tmp1, 0xB1)
	p.a.Maxps(tmp0, tmp1)
	p.a.Unpcklps(tmp2, tmp0) // [min, max]
	p.a.Orps(tmp2, immX)     // empty if any product was NaN
}

// BuildMul implements asm.Assembler.
func (p *intervalAssembler) BuildMul(dst, lhs, rhs asm.Reg) {
	p.mulCore(xmm(lhs), xmm(rhs), false)
	p.a.Movaps(xmm(dst), tmp2)
}

// BuildDiv implements asm.Assembler.
func (p *intervalAssembler) BuildDiv(dst, lhs, rhs asm.Reg) {
	l, r, d := xmm(lhs), xmm(rhs), xmm(dst)
	p.a.Xorps(tmp2, tmp2)
	p.a.Ucomiss(r, tmp2)
	jOK1 := p.a.Jcc(amd64.JA) // rhs.lower > 0
	p.a.Movaps(tmp1, r)
	p.a.Shufps(tmp1, tmp1, 0xE1)
	p.a.Ucomiss(tmp2, tmp1)
	jOK2 := p.a.Jcc(amd64.JA) // rhs.upper < 0
	// The divisor spans zero: empty result.
	p.loadBits(d, float32Nan, true)
	jEnd := p.a.Jmp()

	p.a.Bind(jOK1)
	p.a.Bind(jOK2)
	p.mulCore(l, r, true)
	p.a.Movaps(d, tmp2)
	p.a.Bind(jEnd)
}

// buildMinMax emits the choice-producing compare for min (or max): prove
// one side redundant from the bounds if possible, record the choice, raise
// the simplify flag on Left/Right, and compute the lanewise result
// otherwise.
func (p *intervalAssembler) buildMinMax(dst, lhs, rhs asm.Reg, choice int, isMax bool) {
	l, r, d := xmm(lhs), xmm(rhs), xmm(dst)
	p.a.Movaps(tmp0, l)
	p.a.Shufps(tmp0, tmp0, 0xE1) // lane0 = lhs.upper
	p.a.Movaps(tmp1, r)
	p.a.Shufps(tmp1, tmp1, 0xE1) // lane0 = rhs.upper

	var jLeft, jRight amd64.Label
	if isMax {
		p.a.Ucomiss(l, tmp1) // lhs.lower > rhs.upper → left wins
		jLeft = p.a.Jcc(amd64.JA)
		p.a.Ucomiss(r, tmp0) // rhs.lower > lhs.upper → right wins
		jRight = p.a.Jcc(amd64.JA)
	} else {
		p.a.Ucomiss(r, tmp0) // rhs.lower > lhs.upper → left wins
		jLeft = p.a.Jcc(amd64.JA)
		p.a.Ucomiss(l, tmp1) // lhs.lower > rhs.upper → right wins
		jRight = p.a.Jcc(amd64.JA)
	}

	// Neither side is provably redundant (or a bound is NaN): take the
	// lanewise min/max, forcing NaN lanes through explicitly because the
	// hardware min/max would otherwise pick the second operand.
	p.a.Movaps(tmp2, l)
	if isMax {
		p.a.Maxps(tmp2, r)
	} else {
		p.a.Minps(tmp2, r)
	}
	p.a.Movaps(tmp0, l)
	p.a.Cmpps(tmp0, r, 3) // unordered mask
	p.a.Orps(tmp2, tmp0)
	p.a.Movaps(d, tmp2)
	p.orChoice(choice, byte(api.ChoiceBoth), false)
	jEnd1 := p.a.Jmp()

	p.a.Bind(jLeft)
	if d != l {
		p.a.Movaps(d, l)
	}
	p.orChoice(choice, byte(api.ChoiceLeft), true)
	jEnd2 := p.a.Jmp()

	p.a.Bind(jRight)
	if d != r {
		p.a.Movaps(d, r)
	}
	p.orChoice(choice, byte(api.ChoiceRight), true)

	p.a.Bind(jEnd1)
	p.a.Bind(jEnd2)
}

// BuildMin implements asm.Assembler.
func (p *intervalAssembler) BuildMin(dst, lhs, rhs asm.Reg, choice int) {
	p.buildMinMax(dst, lhs, rhs, choice, false)
}

// BuildMax implements asm.Assembler.
func (p *intervalAssembler) BuildMax(dst, lhs, rhs asm.Reg, choice int) {
	p.buildMinMax(dst, lhs, rhs, choice, true)
}

// BuildFma implements asm.Assembler: no fused form exists for intervals, so
// accumulate the multiply result.
func (p *intervalAssembler) BuildFma(dst, lhs, rhs asm.Reg) {
	p.mulCore(xmm(lhs), xmm(rhs), false)
	p.a.Addps(xmm(dst), tmp2)
}

// LoadImm implements asm.Assembler.
func (p *intervalAssembler) LoadImm(imm float32) asm.Reg {
	p.loadBits(immX, math.Float32bits(imm), true)
	return immReg
}

// BuildLoad implements asm.Assembler.
func (p *intervalAssembler) BuildLoad(dst asm.Reg, slot uint32) {
	p.a.MovsdLoad(xmm(dst), amd64.R8, int32(slot*8))
}

// BuildStore implements asm.Assembler.
func (p *intervalAssembler) BuildStore(slot uint32, src asm.Reg) {
	p.a.MovsdStore(amd64.R8, int32(slot*8), xmm(src))
}

// Finalize implements asm.Assembler.
func (p *intervalAssembler) Finalize(result asm.Reg) error {
	p.a.MovGPR64Load(amd64.RAX, amd64.RDI, offOut)
	p.a.MovsdStore(amd64.RAX, 0, xmm(result))
	return p.finalize()
}

var _ asm.Assembler = (*intervalAssembler)(nil)

type intervalKernel struct {
	seg     *asm.CodeSegment
	ctx     *callContext
	scratch []float32
	outBuf  [4]float32
	flag    byte
	taken   bool
}

// NewIntervalKernel compiles an interval-mode function for the tape.
func NewIntervalKernel(t *ir.Tape, storage engine.Storage) (engine.IntervalKernel, error) {
	if err := checkTape(t); err != nil {
		return nil, err
	}
	seg, err := segmentFor(storage)
	if err != nil {
		return nil, err
	}
	ia := &intervalAssembler{newAssemblerData(seg)}
	if err := asm.BuildFunction(ia, t); err != nil {
		engine.ReleaseSegment(seg)
		return nil, err
	}
	return &intervalKernel{
		seg:     seg,
		ctx:     &callContext{},
		scratch: scratchFloats(storage, t.SlotCount*2),
	}, nil
}

// EvalInterval implements engine.IntervalKernel.
func (k *intervalKernel) EvalInterval(x, y, z api.Interval, vars []float32, choices []api.Choice, simplify *bool) api.Interval {
	if k.taken {
		panic("compiler: evaluator used after Take")
	}
	c := k.ctx
	c.in[0], c.in[1] = x.Lower, x.Upper
	c.in[2], c.in[3] = y.Lower, y.Upper
	c.in[4], c.in[5] = z.Lower, z.Upper
	c.vars = floatsAddr(vars)
	c.choices = choicesAddr(choices)
	c.simplify = uintptr(unsafe.Pointer(&k.flag))
	c.out = uintptr(unsafe.Pointer(&k.outBuf))
	c.scratch = floatsAddr(k.scratch)
	k.flag = 0
	nativecall(k.seg.Addr(), unsafe.Pointer(c))
	runtime.KeepAlive(vars)
	runtime.KeepAlive(choices)
	runtime.KeepAlive(k)
	if k.flag != 0 {
		*simplify = true
	}
	return api.Interval{Lower: k.outBuf[0], Upper: k.outBuf[1]}
}

// Take implements engine.IntervalKernel.
func (k *intervalKernel) Take() (engine.Storage, bool) {
	if k.taken {
		return engine.Storage{}, false
	}
	k.taken = true
	return engine.Storage{Seg: k.seg, Scratch: k.scratch}, true
}

func choicesAddr(s []api.Choice) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0]))
}
