package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbtool/wbtool/pkg/bridge"
)

func openTempBAR(t *testing.T, size int) *PCIe {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resource0")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o600))

	dev := NewPCIe(bridge.PCIeConfig{Path: path})
	require.NoError(t, dev.Open())
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestPCIePeekPoke(t *testing.T) {
	dev := openTempBAR(t, 4096)

	require.NoError(t, dev.Poke(0x10, 0xDEADBEEF))
	v, err := dev.Peek(0x10)
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), v)

	// Words are little-endian in the mapping, matching the bus contract
	// of reading 4 bytes little-endian from the device.
	raw, err := dev.BurstRead(0x10, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xEF, 0xBE, 0xAD, 0xDE}, raw)
}

func TestPCIeBurstRoundTrip(t *testing.T) {
	dev := openTempBAR(t, 4096)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	require.NoError(t, dev.BurstWrite(0x40, data))
	got, err := dev.BurstRead(0x40, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPCIeAccessChecks(t *testing.T) {
	dev := openTempBAR(t, 64)

	_, err := dev.Peek(0x3) // misaligned
	require.Error(t, err)
	_, err = dev.Peek(64) // past the end of the BAR
	require.Error(t, err)
	require.Error(t, dev.Poke(0x41, 0))
}
