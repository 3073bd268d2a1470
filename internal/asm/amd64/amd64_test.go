//go:build linux || darwin || freebsd

package amd64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/implicitcad/carve/internal/asm"
)

func emit(f func(a *Assembler)) ([]byte, *asm.CodeSegment) {
	seg := asm.NewCodeSegment()
	f(New(seg))
	return seg.Bytes(), seg
}

func checkBytes(t *testing.T, want []byte, f func(a *Assembler)) {
	t.Helper()
	got, seg := emit(f)
	defer seg.Unmap()
	require.Equal(t, want, got)
}

func TestXMMRegReg(t *testing.T) {
	// movaps xmm4, xmm5
	checkBytes(t, []byte{0x0F, 0x28, 0xE5}, func(a *Assembler) { a.Movaps(4, 5) })
	// addps xmm10, xmm3 needs REX.R
	checkBytes(t, []byte{0x44, 0x0F, 0x58, 0xD3}, func(a *Assembler) { a.Addps(10, 3) })
	// mulss xmm1, xmm12 needs REX.B after the F3 prefix
	checkBytes(t, []byte{0xF3, 0x41, 0x0F, 0x59, 0xCC}, func(a *Assembler) { a.Mulss(1, 12) })
	// sqrtps xmm15, xmm15
	checkBytes(t, []byte{0x45, 0x0F, 0x51, 0xFF}, func(a *Assembler) { a.Sqrtps(15, 15) })
}

func TestXMMMem(t *testing.T) {
	// movss xmm4, [rdi+16]
	checkBytes(t, []byte{0xF3, 0x0F, 0x10, 0xA7, 0x10, 0x00, 0x00, 0x00},
		func(a *Assembler) { a.MovssLoad(4, RDI, 16) })
	// movups [r8+32], xmm6 needs REX.B
	checkBytes(t, []byte{0x41, 0x0F, 0x11, 0xB0, 0x20, 0x00, 0x00, 0x00},
		func(a *Assembler) { a.MovupsStore(R8, 32, 6) })
	// movsd xmm9, [rdi+8]
	checkBytes(t, []byte{0xF2, 0x44, 0x0F, 0x10, 0x8F, 0x08, 0x00, 0x00, 0x00},
		func(a *Assembler) { a.MovsdLoad(9, RDI, 8) })
}

func TestShufpsAndCmpps(t *testing.T) {
	// shufps xmm4, xmm4, 0xE1
	checkBytes(t, []byte{0x0F, 0xC6, 0xE4, 0xE1}, func(a *Assembler) { a.Shufps(4, 4, 0xE1) })
	// cmpps xmm0, xmm5, 3 (unordered)
	checkBytes(t, []byte{0x0F, 0xC2, 0xC5, 0x03}, func(a *Assembler) { a.Cmpps(0, 5, 3) })
}

func TestGPRMoves(t *testing.T) {
	// mov rcx, [rdi+72]
	checkBytes(t, []byte{0x48, 0x8B, 0x8F, 0x48, 0x00, 0x00, 0x00},
		func(a *Assembler) { a.MovGPR64Load(RCX, RDI, 72) })
	// mov r8, [rdi+104]
	checkBytes(t, []byte{0x4C, 0x8B, 0x87, 0x68, 0x00, 0x00, 0x00},
		func(a *Assembler) { a.MovGPR64Load(R8, RDI, 104) })
	// mov eax, 0x3F800000
	checkBytes(t, []byte{0xB8, 0x00, 0x00, 0x80, 0x3F},
		func(a *Assembler) { a.MovEAXImm32(0x3F800000) })
	// movd xmm3, eax
	checkBytes(t, []byte{0x66, 0x0F, 0x6E, 0xD8}, func(a *Assembler) { a.Movd(3, RAX) })
}

func TestByteOps(t *testing.T) {
	// mov al, [rsi+2]
	checkBytes(t, []byte{0x8A, 0x86, 0x02, 0x00, 0x00, 0x00},
		func(a *Assembler) { a.MovALLoad(RSI, 2) })
	// or al, 1
	checkBytes(t, []byte{0x0C, 0x01}, func(a *Assembler) { a.OrALImm(1) })
	// mov [rsi+2], al
	checkBytes(t, []byte{0x88, 0x86, 0x02, 0x00, 0x00, 0x00},
		func(a *Assembler) { a.MovALStore(RSI, 2) })
	// mov byte [rdx+0], 1
	checkBytes(t, []byte{0xC6, 0x82, 0x00, 0x00, 0x00, 0x00, 0x01},
		func(a *Assembler) { a.MovByteStoreImm(RDX, 0, 1) })
}

func TestForwardJumpPatching(t *testing.T) {
	got, seg := emit(func(a *Assembler) {
		l := a.Jcc(JA)   // 6 bytes
		a.Ret()          // 1 byte skipped by the branch
		a.Bind(l)        // lands here
		j := a.Jmp()     // 5 bytes
		a.Bind(j)        // zero-length jump
		a.Ret()
	})
	defer seg.Unmap()
	require.Equal(t, []byte{
		0x0F, 0x87, 0x01, 0x00, 0x00, 0x00, // ja +1
		0xC3,
		0xE9, 0x00, 0x00, 0x00, 0x00, // jmp +0
		0xC3,
	}, got)
}

func TestUcomiss(t *testing.T) {
	// ucomiss xmm0, xmm7
	checkBytes(t, []byte{0x0F, 0x2E, 0xC7}, func(a *Assembler) { a.Ucomiss(0, 7) })
}
