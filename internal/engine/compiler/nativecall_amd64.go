//go:build amd64 && (linux || darwin || freebsd)

package compiler

import "unsafe"

// nativecall enters JIT-compiled code with ctx in RDI. The generated code
// clobbers only caller-saved registers and returns with RET.
//
//go:noescape
func nativecall(code uintptr, ctx unsafe.Pointer)
