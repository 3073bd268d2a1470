// Package amd64 is a minimal x86-64 instruction encoder covering exactly
// what the evaluator backends emit: SSE scalar/packed float arithmetic,
// register-to-memory moves against a base register with displacement, byte
// loads/stores for the choice trail, and rel32 branches with forward-label
// patching. Instructions are written straight into an asm.CodeSegment; no
// intermediate node list is kept because the generated functions are
// straight-line code with short local branches only.
package amd64

import (
	"github.com/implicitcad/carve/internal/asm"
)

// GPR is a general-purpose register.
type GPR byte

const (
	RAX GPR = 0
	RCX GPR = 1
	RDX GPR = 2
	RBX GPR = 3
	RSP GPR = 4
	RBP GPR = 5
	RSI GPR = 6
	RDI GPR = 7
	R8  GPR = 8
	R9  GPR = 9
	R10 GPR = 10
	R11 GPR = 11
)

// XMM is an SSE register, 0 through 15.
type XMM byte

// Condition codes for Jcc, as the second opcode byte of the rel32 form.
const (
	// JB jumps if below (CF=1); taken on unordered compares.
	JB = 0x82
	// JAE jumps if above or equal (CF=0).
	JAE = 0x83
	// JE jumps if equal.
	JE = 0x84
	// JNE jumps if not equal.
	JNE = 0x85
	// JBE jumps if below or equal (CF=1 or ZF=1); taken on unordered.
	JBE = 0x86
	// JA jumps if above (CF=0 and ZF=0); never taken on unordered
	// compares, which makes it the NaN-safe "strictly greater" branch
	// after UCOMISS.
	JA = 0x87
	// JP jumps if parity (unordered result of UCOMISS).
	JP = 0x8A
)

// Assembler emits into a code segment.
type Assembler struct {
	seg *asm.CodeSegment
}

// New returns an assembler writing to seg.
func New(seg *asm.CodeSegment) *Assembler {
	return &Assembler{seg: seg}
}

func (a *Assembler) rex(w bool, reg, rm byte) {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if reg >= 8 {
		b |= 0x04
	}
	if rm >= 8 {
		b |= 0x01
	}
	if b != 0x40 {
		a.seg.WriteByte(b)
	}
}

func (a *Assembler) modRM(mod, reg, rm byte) {
	a.seg.WriteByte(mod<<6 | (reg&7)<<3 | rm&7)
}

// xmmReg emits a two-byte-opcode SSE instruction with register operands:
// [prefix] [REX] 0F op modrm(11, dst, src).
func (a *Assembler) xmmReg(prefix, op byte, dst, src XMM) {
	if prefix != 0 {
		a.seg.WriteByte(prefix)
	}
	a.rex(false, byte(dst), byte(src))
	a.seg.WriteByte(0x0F)
	a.seg.WriteByte(op)
	a.modRM(3, byte(dst), byte(src))
}

// xmmMem emits an SSE instruction against [base+disp] with a 32-bit
// displacement. Bases encoding to rm=100 need a SIB byte, which nothing
// here emits; the backends never address through RSP or R12.
func (a *Assembler) xmmMem(prefix, op byte, x XMM, base GPR, disp int32) {
	if base&7 == 4 {
		panic("amd64: SIB addressing not supported")
	}
	if prefix != 0 {
		a.seg.WriteByte(prefix)
	}
	a.rex(false, byte(x), byte(base))
	a.seg.WriteByte(0x0F)
	a.seg.WriteByte(op)
	a.modRM(2, byte(x), byte(base))
	a.seg.WriteUint32(uint32(disp))
}

// Movaps copies all four lanes of src to dst.
func (a *Assembler) Movaps(dst, src XMM) { a.xmmReg(0, 0x28, dst, src) }

// Movss copies lane 0 of src to dst, leaving dst's other lanes intact.
func (a *Assembler) Movss(dst, src XMM) { a.xmmReg(0xF3, 0x10, dst, src) }

func (a *Assembler) Addps(dst, src XMM)  { a.xmmReg(0, 0x58, dst, src) }
func (a *Assembler) Addss(dst, src XMM)  { a.xmmReg(0xF3, 0x58, dst, src) }
func (a *Assembler) Subps(dst, src XMM)  { a.xmmReg(0, 0x5C, dst, src) }
func (a *Assembler) Subss(dst, src XMM)  { a.xmmReg(0xF3, 0x5C, dst, src) }
func (a *Assembler) Mulps(dst, src XMM)  { a.xmmReg(0, 0x59, dst, src) }
func (a *Assembler) Mulss(dst, src XMM)  { a.xmmReg(0xF3, 0x59, dst, src) }
func (a *Assembler) Divps(dst, src XMM)  { a.xmmReg(0, 0x5E, dst, src) }
func (a *Assembler) Divss(dst, src XMM)  { a.xmmReg(0xF3, 0x5E, dst, src) }
func (a *Assembler) Minps(dst, src XMM)  { a.xmmReg(0, 0x5D, dst, src) }
func (a *Assembler) Minss(dst, src XMM)  { a.xmmReg(0xF3, 0x5D, dst, src) }
func (a *Assembler) Maxps(dst, src XMM)  { a.xmmReg(0, 0x5F, dst, src) }
func (a *Assembler) Maxss(dst, src XMM)  { a.xmmReg(0xF3, 0x5F, dst, src) }
func (a *Assembler) Sqrtps(dst, src XMM) { a.xmmReg(0, 0x51, dst, src) }
func (a *Assembler) Sqrtss(dst, src XMM) { a.xmmReg(0xF3, 0x51, dst, src) }

func (a *Assembler) Andps(dst, src XMM)    { a.xmmReg(0, 0x54, dst, src) }
func (a *Assembler) Orps(dst, src XMM)     { a.xmmReg(0, 0x56, dst, src) }
func (a *Assembler) Xorps(dst, src XMM)    { a.xmmReg(0, 0x57, dst, src) }
func (a *Assembler) Unpcklps(dst, src XMM) { a.xmmReg(0, 0x14, dst, src) }

// Shufps fills each lane of dst with the source lane selected by the
// corresponding 2-bit field of imm (lanes 0-1 select from dst, 2-3 from
// src; with dst==src it is an arbitrary permute).
func (a *Assembler) Shufps(dst, src XMM, imm byte) {
	a.xmmReg(0, 0xC6, dst, src)
	a.seg.WriteByte(imm)
}

// Ucomiss compares lane 0 of x against lane 0 of y, setting ZF/PF/CF like
// an unsigned compare (use JA for NaN-safe strict "x > y").
func (a *Assembler) Ucomiss(x, y XMM) { a.xmmReg(0, 0x2E, x, y) }

// Cmpps compares dst and src lanewise under the given predicate (0=EQ,
// 1=LT, 2=LE, 3=UNORD, ...) and fills each dst lane with all-ones or zero.
func (a *Assembler) Cmpps(dst, src XMM, pred byte) {
	a.xmmReg(0, 0xC2, dst, src)
	a.seg.WriteByte(pred)
}

// Movd moves a 32-bit GPR into lane 0 of an XMM register, zeroing the rest.
func (a *Assembler) Movd(dst XMM, src GPR) {
	a.seg.WriteByte(0x66)
	a.rex(false, byte(dst), byte(src))
	a.seg.WriteByte(0x0F)
	a.seg.WriteByte(0x6E)
	a.modRM(3, byte(dst), byte(src))
}

// Memory forms. The load/store opcodes differ (0x10/0x11); the register is
// always the reg field.

func (a *Assembler) MovssLoad(dst XMM, base GPR, disp int32)  { a.xmmMem(0xF3, 0x10, dst, base, disp) }
func (a *Assembler) MovssStore(base GPR, disp int32, src XMM) { a.xmmMem(0xF3, 0x11, src, base, disp) }
func (a *Assembler) MovsdLoad(dst XMM, base GPR, disp int32)  { a.xmmMem(0xF2, 0x10, dst, base, disp) }
func (a *Assembler) MovsdStore(base GPR, disp int32, src XMM) { a.xmmMem(0xF2, 0x11, src, base, disp) }
func (a *Assembler) MovupsLoad(dst XMM, base GPR, disp int32) { a.xmmMem(0, 0x10, dst, base, disp) }
func (a *Assembler) MovupsStore(base GPR, disp int32, src XMM) {
	a.xmmMem(0, 0x11, src, base, disp)
}

// MovEAXImm32 loads a 32-bit immediate into EAX.
func (a *Assembler) MovEAXImm32(v uint32) {
	a.seg.WriteByte(0xB8)
	a.seg.WriteUint32(v)
}

// MovGPR64Load loads a 64-bit value from [base+disp] into dst.
func (a *Assembler) MovGPR64Load(dst, base GPR, disp int32) {
	if base&7 == 4 {
		panic("amd64: SIB addressing not supported")
	}
	b := byte(0x48)
	if dst >= 8 {
		b |= 0x04
	}
	if base >= 8 {
		b |= 0x01
	}
	a.seg.WriteByte(b)
	a.seg.WriteByte(0x8B)
	a.modRM(2, byte(dst), byte(base))
	a.seg.WriteUint32(uint32(disp))
}

// MovALLoad loads the byte at [base+disp] into AL.
func (a *Assembler) MovALLoad(base GPR, disp int32) {
	if base&7 == 4 {
		panic("amd64: SIB addressing not supported")
	}
	a.rex(false, 0, byte(base))
	a.seg.WriteByte(0x8A)
	a.modRM(2, 0, byte(base))
	a.seg.WriteUint32(uint32(disp))
}

// MovALStore stores AL to [base+disp].
func (a *Assembler) MovALStore(base GPR, disp int32) {
	if base&7 == 4 {
		panic("amd64: SIB addressing not supported")
	}
	a.rex(false, 0, byte(base))
	a.seg.WriteByte(0x88)
	a.modRM(2, 0, byte(base))
	a.seg.WriteUint32(uint32(disp))
}

// OrALImm ORs an 8-bit immediate into AL.
func (a *Assembler) OrALImm(v byte) {
	a.seg.WriteByte(0x0C)
	a.seg.WriteByte(v)
}

// MovByteStoreImm stores an 8-bit immediate to [base+disp].
func (a *Assembler) MovByteStoreImm(base GPR, disp int32, v byte) {
	if base&7 == 4 {
		panic("amd64: SIB addressing not supported")
	}
	a.rex(false, 0, byte(base))
	a.seg.WriteByte(0xC6)
	a.modRM(2, 0, byte(base))
	a.seg.WriteUint32(uint32(disp))
	a.seg.WriteByte(v)
}

// Ret emits a near return.
func (a *Assembler) Ret() { a.seg.WriteByte(0xC3) }

// Label is the patch location of a pending forward branch displacement.
type Label int

// Jcc emits a conditional rel32 jump with an unresolved target; Bind
// resolves it.
func (a *Assembler) Jcc(cc byte) Label {
	a.seg.WriteByte(0x0F)
	a.seg.WriteByte(cc)
	l := Label(a.seg.Len())
	a.seg.WriteUint32(0)
	return l
}

// Jmp emits an unconditional rel32 jump with an unresolved target.
func (a *Assembler) Jmp() Label {
	a.seg.WriteByte(0xE9)
	l := Label(a.seg.Len())
	a.seg.WriteUint32(0)
	return l
}

// Bind resolves a forward branch to the current position.
func (a *Assembler) Bind(l Label) {
	a.seg.PatchUint32(int(l), uint32(int32(a.seg.Len()-(int(l)+4))))
}
