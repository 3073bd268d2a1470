//go:build linux || darwin || freebsd

package platform

import "syscall"

const (
	mmapProtRW = syscall.PROT_READ | syscall.PROT_WRITE
	mmapProtRX = syscall.PROT_READ | syscall.PROT_EXEC
)

// MmapCodeSegment returns a new anonymous read/write mapping of the given
// size, rounded up to whole pages. Code is written while the mapping is
// writable; MprotectRX flips it executable before the first call.
func MmapCodeSegment(size int) ([]byte, error) {
	if size == 0 {
		panic("platform: mmap of zero bytes")
	}
	return syscall.Mmap(-1, 0, roundUpPage(size), mmapProtRW, syscall.MAP_ANON|syscall.MAP_PRIVATE)
}

// RemapCodeSegment grows a mapping created by MmapCodeSegment to the given
// larger size, copying the existing contents. The old mapping is released.
func RemapCodeSegment(code []byte, size int) ([]byte, error) {
	if size < len(code) {
		panic("platform: remap would shrink the segment")
	}
	b, err := MmapCodeSegment(size)
	if err != nil {
		return nil, err
	}
	copy(b, code)
	if err := MunmapCodeSegment(code); err != nil {
		return nil, err
	}
	return b, nil
}

// MunmapCodeSegment releases a mapping created by MmapCodeSegment.
func MunmapCodeSegment(code []byte) error {
	if len(code) == 0 {
		panic("platform: munmap of empty segment")
	}
	return syscall.Munmap(code[:cap(code)])
}

// MprotectRX flips a mapping from writable to executable and synchronizes
// the instruction cache. On amd64 the icache is coherent with stores, so
// the protection change alone suffices.
func MprotectRX(code []byte) error {
	return syscall.Mprotect(code[:cap(code)], mmapProtRX)
}

// MprotectRW flips a finalized mapping back to writable so that a donated
// segment can be overwritten by the next code generation.
func MprotectRW(code []byte) error {
	return syscall.Mprotect(code[:cap(code)], mmapProtRW)
}

func roundUpPage(size int) int {
	p := syscall.Getpagesize()
	return (size + p - 1) &^ (p - 1)
}
