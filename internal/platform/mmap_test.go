//go:build linux || darwin || freebsd

package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMmapCodeSegment(t *testing.T) {
	b, err := MmapCodeSegment(100)
	require.NoError(t, err)
	// Mappings round up to whole pages.
	require.GreaterOrEqual(t, len(b), 100)

	// Writable on creation.
	b[0] = 0xC3
	require.Equal(t, byte(0xC3), b[0])
	require.NoError(t, MunmapCodeSegment(b))
}

func TestRemapCodeSegment(t *testing.T) {
	b, err := MmapCodeSegment(4096)
	require.NoError(t, err)
	for i := range b {
		b[i] = byte(i)
	}
	grown, err := RemapCodeSegment(b, 2*len(b))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(grown), 2*4096)
	for i := 0; i < 4096; i++ {
		require.Equal(t, byte(i), grown[i])
	}
	require.NoError(t, MunmapCodeSegment(grown))
}

func TestMprotectRoundTrip(t *testing.T) {
	b, err := MmapCodeSegment(4096)
	require.NoError(t, err)
	b[0] = 0xC3
	require.NoError(t, MprotectRX(b))
	// Still readable while executable.
	require.Equal(t, byte(0xC3), b[0])
	require.NoError(t, MprotectRW(b))
	b[1] = 0x90
	require.NoError(t, MunmapCodeSegment(b))
}
