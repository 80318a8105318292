package gdbserver

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFramePacketChecksum(t *testing.T) {
	// "OK" checksum is 0x4f+0x4b = 0x9a
	require.Equal(t, "$OK#9a", framePacket("OK"))
}

func TestReadPacketRoundTrip(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("$OK#9a"))
	payload, interrupted, err := readPacket(r)
	require.NoError(t, err)
	require.False(t, interrupted)
	require.Equal(t, "OK", payload)
}

func TestReadPacketChecksumMismatch(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("$OK#00"))
	_, _, err := readPacket(r)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadPacketSkipsAcksAndGarbage(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("+-xy$OK#9a"))
	payload, _, err := readPacket(r)
	require.NoError(t, err)
	require.Equal(t, "OK", payload)
}

func TestReadPacketInterrupt(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\x03$OK#9a"))
	_, interrupted, err := readPacket(r)
	require.NoError(t, err)
	require.True(t, interrupted)
}

func TestUnescapeBinaryEscape(t *testing.T) {
	// '}' followed by a byte XORed with 0x20: '}' (0x7d) itself travels
	// as '}' followed by 0x7d^0x20 = 0x5d (']'), per the GDB binary
	// protocol.
	require.Equal(t, "}", unescape("}\x5d"))
	require.Equal(t, "abc", unescape("abc"))
}

func TestSliceXferPagination(t *testing.T) {
	data := "0123456789"
	require.Equal(t, "m01234", sliceXfer(data, 0, 5))
	require.Equal(t, "l56789", sliceXfer(data, 5, 5))
	require.Equal(t, "l", sliceXfer(data, 10, 5))
	require.Equal(t, "l", sliceXfer(data, 20, 5))
}

func TestHexLERoundTrip(t *testing.T) {
	v := uint32(0x12345678)
	s := hexLE(v)
	require.Equal(t, "78563412", s)
	got, err := parseHexLE(s)
	require.NoError(t, err)
	require.Equal(t, v, got)
}
