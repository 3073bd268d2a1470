package asm

import (
	"encoding/binary"
	"unsafe"

	"github.com/implicitcad/carve/internal/platform"
)

// CodeSegment is a memory-mapped region native instructions are written
// into. Assemblers append through the write helpers while the mapping is
// writable; Finalize flips it executable and no further writes are allowed
// until Reset.
//
// Instances hold references to memory which is NOT managed by the garbage
// collector and must be released manually with Unmap to avoid leaks. The
// zero value is a valid, empty segment that maps itself on first write.
type CodeSegment struct {
	code []byte
	size int
	exec bool
}

// NewCodeSegment returns an empty segment.
func NewCodeSegment() *CodeSegment {
	return &CodeSegment{}
}

// Addr returns the address of the beginning of the segment.
func (seg *CodeSegment) Addr() uintptr {
	if len(seg.code) > 0 {
		return uintptrOf(seg.code)
	}
	return 0
}

// Len returns the number of bytes written since the last Reset.
func (seg *CodeSegment) Len() int { return seg.size }

// Bytes returns the written portion of the segment.
func (seg *CodeSegment) Bytes() []byte { return seg.code[:seg.size] }

// Reset makes a previously finalized (or partially written) segment
// writable again and rewinds it, so a donated mapping can be overwritten by
// the next code generation without another mmap.
func (seg *CodeSegment) Reset() error {
	if seg.exec {
		if err := platform.MprotectRW(seg.code); err != nil {
			return err
		}
		seg.exec = false
	}
	seg.size = 0
	return nil
}

// Finalize flips the segment executable and synchronizes the instruction
// cache for the target ISA.
func (seg *CodeSegment) Finalize() error {
	if seg.exec || len(seg.code) == 0 {
		return nil
	}
	if err := platform.MprotectRX(seg.code); err != nil {
		return err
	}
	seg.exec = true
	return nil
}

// Unmap releases the underlying mapping, clearing the segment back to its
// zero value. The segment remains usable; the next write maps fresh memory.
func (seg *CodeSegment) Unmap() error {
	if seg.code != nil {
		if err := platform.MunmapCodeSegment(seg.code); err != nil {
			return err
		}
		seg.code = nil
		seg.size = 0
		seg.exec = false
	}
	return nil
}

func (seg *CodeSegment) append(n int) []byte {
	if seg.exec {
		panic("asm: write to a finalized code segment")
	}
	i := seg.size
	j := i + n
	if j > len(seg.code) {
		seg.grow(j)
	}
	seg.size = j
	return seg.code[i:j:j]
}

// WriteByte appends a single byte.
func (seg *CodeSegment) WriteByte(b byte) {
	seg.append(1)[0] = b
}

// Write appends bytes.
func (seg *CodeSegment) Write(b []byte) {
	copy(seg.append(len(b)), b)
}

// WriteUint32 appends a 32-bit little-endian value.
func (seg *CodeSegment) WriteUint32(u uint32) {
	binary.LittleEndian.PutUint32(seg.append(4), u)
}

// PatchUint32 overwrites 4 bytes at a previously written offset, used to
// resolve forward jump displacements.
func (seg *CodeSegment) PatchUint32(off int, u uint32) {
	binary.LittleEndian.PutUint32(seg.code[off:off+4], u)
}

func (seg *CodeSegment) grow(want int) {
	size := len(seg.code)
	if size == 0 {
		b, err := platform.MmapCodeSegment(defaultSegmentSize(want))
		if err != nil {
			// Running out of executable memory is not a recoverable
			// per-operation condition; treat it like any allocation failure.
			panic(err)
		}
		seg.code = b
		return
	}
	for size < want {
		size *= 2
	}
	b, err := platform.RemapCodeSegment(seg.code, size)
	if err != nil {
		panic(err)
	}
	seg.code = b
}

func defaultSegmentSize(want int) int {
	const min = 65536
	if want > min {
		return want
	}
	return min
}

func uintptrOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
