//go:build !(linux || darwin || freebsd)

package platform

import (
	"fmt"
	"runtime"
)

var errUnsupported = fmt.Errorf("platform: executable memory is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)

// MmapCodeSegment errors: compilation is gated on CompilerSupported.
func MmapCodeSegment(int) ([]byte, error) { return nil, errUnsupported }

// RemapCodeSegment errors: compilation is gated on CompilerSupported.
func RemapCodeSegment([]byte, int) ([]byte, error) { return nil, errUnsupported }

// MunmapCodeSegment errors on platforms without mmap.
func MunmapCodeSegment([]byte) error { return errUnsupported }

// MprotectRX errors on platforms without mmap.
func MprotectRX([]byte) error { return errUnsupported }

// MprotectRW errors on platforms without mmap.
func MprotectRW([]byte) error { return errUnsupported }
