//go:build amd64 && (linux || darwin || freebsd)

package compiler

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// The off* constants are baked into emitted instructions; this pins them to
// the actual struct layout.
func TestCallContextOffsets(t *testing.T) {
	var c callContext
	require.Equal(t, uintptr(offIn), unsafe.Offsetof(c.in))
	require.Equal(t, uintptr(offXs), unsafe.Offsetof(c.xs))
	require.Equal(t, uintptr(offYs), unsafe.Offsetof(c.ys))
	require.Equal(t, uintptr(offZs), unsafe.Offsetof(c.zs))
	require.Equal(t, uintptr(offVars), unsafe.Offsetof(c.vars))
	require.Equal(t, uintptr(offChoices), unsafe.Offsetof(c.choices))
	require.Equal(t, uintptr(offSimplify), unsafe.Offsetof(c.simplify))
	require.Equal(t, uintptr(offOut), unsafe.Offsetof(c.out))
	require.Equal(t, uintptr(offScratch), unsafe.Offsetof(c.scratch))
}

func TestXMMMapping(t *testing.T) {
	require.Equal(t, immX, xmm(immReg))
	require.EqualValues(t, 4, xmm(0))
	require.EqualValues(t, 15, xmm(11))
	require.Panics(t, func() { xmm(12) })
}
