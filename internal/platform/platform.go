// Package platform includes runtime-specific code needed by the JIT
// compiler: anonymous executable memory mappings and detection of whether
// the current platform has a compiler backend at all.
//
// Note: This is a dependency-free package to avoid circular dependencies.
package platform

import "runtime"

// CompilerSupported reports whether the JIT compiler backend can run on the
// current platform. Unsupported platforms fall back to the interpreter
// family, which produces identical results through the same assembler
// contract.
func CompilerSupported() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
	default:
		return false
	}
	return runtime.GOARCH == "amd64"
}
